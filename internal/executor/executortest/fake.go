// Package executortest provides a scripted executor for tests.
package executortest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angular/web-codegen-scorer/internal/executor"
	"github.com/angular/web-codegen-scorer/internal/ids"
	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/tasks"
)

// Fake is a scripted executor. Its zero value generates one file per
// prompt, builds successfully and neither tests nor serves.
type Fake struct {
	// GenerateFunc overrides generation. attempt is 0 for the initial
	// request and counts repairs after that.
	GenerateFunc func(ctx context.Context, req executor.GenerateRequest, errorMessage string, attempt int) (*executor.Generation, error)
	// Builds are returned per app in order; the last one repeats.
	Builds map[string][]result.BuildResult
	// Tests are returned per app in order; the last one repeats. A nil map
	// means the project has no tests.
	Tests map[string][]result.TestResult
	// Serving makes Serve call its callback with a placeholder URL.
	Serving  bool
	NoRepair bool
	// Delay is spent in every build, test and generation.
	Delay time.Duration
	IDs   ids.Generator

	mu          sync.Mutex
	generations map[string]int
	builds      map[string]int
	tests       map[string]int
	open        map[result.EvalID]bool
	activeWork  int
	peakWork    int

	destroyed atomic.Int32
	finalized atomic.Int32
}

func (f *Fake) InitializeEval(ctx context.Context) (result.EvalID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IDs == nil {
		f.IDs = &ids.Counter{Prefix: "fake"}
	}
	if f.open == nil {
		f.open = map[result.EvalID]bool{}
	}
	id := result.EvalID(f.IDs.Next())
	f.open[id] = true
	return id, nil
}

func (f *Fake) generate(ctx context.Context, req executor.GenerateRequest, errorMessage string) (*executor.Generation, error) {
	f.mu.Lock()
	if f.generations == nil {
		f.generations = map[string]int{}
	}
	attempt := f.generations[req.Prompt.Name]
	f.generations[req.Prompt.Name]++
	f.mu.Unlock()

	if err := f.sleep(ctx); err != nil {
		return nil, err
	}
	if f.GenerateFunc != nil {
		return f.GenerateFunc(ctx, req, errorMessage, attempt)
	}
	return &executor.Generation{
		Files: []result.File{{FilePath: "src/app.ts", Code: fmt.Sprintf("// %s attempt %d\n", req.Prompt.Name, attempt)}},
		Usage: result.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}, nil
}

func (f *Fake) GenerateInitialFiles(ctx context.Context, _ result.EvalID, req executor.GenerateRequest) (*executor.Generation, error) {
	return f.generate(ctx, req, "")
}

func (f *Fake) GenerateRepairFiles(ctx context.Context, _ result.EvalID, req executor.GenerateRequest, errorMessage string, _ []result.File) (*executor.Generation, error) {
	return f.generate(ctx, req, errorMessage)
}

func (f *Fake) ShouldRepairFailedBuilds(context.Context, result.EvalID) bool { return !f.NoRepair }

func (f *Fake) Build(ctx context.Context, _ result.EvalID, _ string, root result.RootPromptDefinition, q executor.Limiter, _ progress.Logger) (result.BuildResult, error) {
	var res result.BuildResult
	err := q.Do(ctx, func(ctx context.Context) error {
		defer f.track()()
		if err := f.sleep(ctx); err != nil {
			return err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.builds == nil {
			f.builds = map[string]int{}
		}
		n := f.builds[root.Name]
		f.builds[root.Name]++
		res = result.BuildResult{Status: result.BuildSuccess}
		if script := f.Builds[root.Name]; len(script) > 0 {
			res = script[min(n, len(script)-1)]
		}
		return nil
	})
	return res, err
}

func (f *Fake) ExecuteTests(ctx context.Context, _ result.EvalID, _ string, root result.RootPromptDefinition, q executor.Limiter, _ progress.Logger) (*result.TestResult, error) {
	if f.Tests == nil {
		return nil, nil
	}
	var res *result.TestResult
	err := q.Do(ctx, func(ctx context.Context) error {
		defer f.track()()
		if err := f.sleep(ctx); err != nil {
			return err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.tests == nil {
			f.tests = map[string]int{}
		}
		n := f.tests[root.Name]
		f.tests[root.Name]++
		res = &result.TestResult{Passed: true, PassRate: 1}
		if script := f.Tests[root.Name]; len(script) > 0 {
			r := script[min(n, len(script)-1)]
			res = &r
		}
		return nil
	})
	return res, err
}

func (f *Fake) Serve(ctx context.Context, _ result.EvalID, _ string, root result.RootPromptDefinition, _ progress.Logger, fn tasks.WhileServing) (*result.ServeTestingResult, error) {
	if !f.Serving {
		return nil, nil
	}
	return fn(ctx, "http://localhost:4200/"+root.Name)
}

func (f *Fake) FinalizeEval(_ context.Context, id result.EvalID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[id] {
		return fmt.Errorf("eval %s is not open", id)
	}
	delete(f.open, id)
	f.finalized.Add(1)
	return nil
}

func (f *Fake) IsSupportedModel(_ context.Context, model string) (executor.ModelSupport, error) {
	return executor.ModelSupport{Supported: model != "", AvailableModels: []string{"fake-model"}}, nil
}

func (f *Fake) Info() result.ExecutorInfo {
	return result.ExecutorInfo{ID: "fake", DisplayName: "Fake executor"}
}

func (f *Fake) Destroy(context.Context) error {
	f.destroyed.Add(1)
	return nil
}

func (f *Fake) Destroyed() int { return int(f.destroyed.Load()) }
func (f *Fake) Finalized() int { return int(f.finalized.Load()) }

// OpenEvals counts evals initialized but not finalized.
func (f *Fake) OpenEvals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}

// PeakWork is the largest number of builds and tests seen at once.
func (f *Fake) PeakWork() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakWork
}

func (f *Fake) BuildCalls(app string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds[app]
}

func (f *Fake) track() func() {
	f.mu.Lock()
	f.activeWork++
	f.peakWork = max(f.peakWork, f.activeWork)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.activeWork--
		f.mu.Unlock()
	}
}

func (f *Fake) sleep(ctx context.Context) error {
	if f.Delay <= 0 {
		return context.Cause(ctx)
	}
	t := time.NewTimer(f.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
