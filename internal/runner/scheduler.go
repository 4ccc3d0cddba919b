// Package runner schedules prompt pipelines: an outer pool bounds how many
// prompts are evaluated at once and a shared WorkerQueue bounds builds,
// tests and serve validations across all of them.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/angular/web-codegen-scorer/internal/abort"
	"github.com/angular/web-codegen-scorer/internal/pipeline"
	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/timeout"
)

const DefaultEvalTimeout = 30 * time.Minute

var (
	errExecutorDestroyed = errors.New("executor was torn down")
	errQueueNotDrained   = errors.New("worker queue still has running operations")
)

type Options struct {
	// Pipeline is shared by every prompt. Its Limiter is replaced by the
	// scheduler's WorkerQueue.
	Pipeline pipeline.Config

	// Zero means automatic; see Concurrency.
	AppConcurrency    int
	WorkerConcurrency int
	EvalTimeout       time.Duration
}

// Outcome holds every settled prompt, sorted by prompt name. A prompt appears
// in exactly one of Results and Failed.
type Outcome struct {
	Results []result.AssessmentResult
	Failed  []result.FailedPrompt

	AppConcurrency    int
	WorkerConcurrency int
	PeakWorkers       int
}

// Run evaluates prompts and tears the executor down exactly once, either
// when ctx is cancelled or after the last prompt settles. A prompt that
// fails or times out is recorded in Outcome.Failed without affecting the
// others. Only cancellation of ctx is returned as an error, together with
// whatever settled.
func Run(ctx context.Context, opts Options, prompts []result.RootPromptDefinition) (*Outcome, error) {
	appN, workerN := Concurrency(opts.AppConcurrency, opts.WorkerConcurrency, runtime.NumCPU())
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = DefaultEvalTimeout
	}
	queue := NewWorkerQueue(workerN)

	cfg := opts.Pipeline
	cfg.Limiter = queue
	if cfg.Progress == nil {
		cfg.Progress = progress.Nop{}
	}
	exec := cfg.Executor

	// shutdown ends in-flight pipelines once the executor is gone.
	shutdown, stopAll := context.WithCancelCause(context.Background())
	defer stopAll(nil)
	var destroyOnce sync.Once
	destroy := func() {
		destroyOnce.Do(func() {
			stopAll(errExecutorDestroyed)
			if err := exec.Destroy(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("destroying executor")
			}
		})
	}
	stopWatch := context.AfterFunc(ctx, destroy)
	defer stopWatch()

	log.Info().
		Int("prompts", len(prompts)).
		Int("app_concurrency", appN).
		Int("worker_concurrency", workerN).
		Str("executor", exec.Info().ID).
		Msg("starting evaluation")
	cfg.Progress.Initialize(len(prompts))

	var (
		mu  sync.Mutex
		out = &Outcome{AppConcurrency: appN, WorkerConcurrency: workerN}
	)
	p := pool.New().WithMaxGoroutines(appN)
	for _, root := range prompts {
		p.Go(func() {
			results, failed := evaluate(ctx, shutdown, cfg, opts.EvalTimeout, root)
			cfg.Progress.EvalFinished(root.Name, results)

			mu.Lock()
			defer mu.Unlock()
			out.Results = append(out.Results, results...)
			if failed != nil {
				out.Failed = append(out.Failed, *failed)
			}
		})
	}
	p.Wait()

	destroy()
	cfg.Progress.Finalize()

	out.PeakWorkers = queue.Peak()
	sort.SliceStable(out.Results, func(i, j int) bool { return out.Results[i].PromptDef.Name < out.Results[j].PromptDef.Name })
	sort.SliceStable(out.Failed, func(i, j int) bool { return out.Failed[i].PromptName < out.Failed[j].PromptName })

	if n := queue.Active(); n != 0 {
		return out, fmt.Errorf("%w: %d", errQueueNotDrained, n)
	}
	if ctx.Err() != nil {
		return out, context.Cause(ctx)
	}
	return out, nil
}

// evaluate runs one prompt under its own deadline, pairing InitializeEval
// with FinalizeEval. It returns only once the pipeline has stopped, so
// nothing it started outlives it. Panics are recorded with their stack.
func evaluate(ctx, shutdown context.Context, cfg pipeline.Config, limit time.Duration, root result.RootPromptDefinition) ([]result.AssessmentResult, *result.FailedPrompt) {
	finished := make(chan struct{})
	var (
		partial []result.AssessmentResult
		stack   string
	)
	_, err := timeout.Run(context.WithoutCancel(ctx), "Evaluation of "+root.Name, limit, func(deadline context.Context) (_ struct{}, err error) {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				stack = string(debug.Stack())
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		ctx, cancel := abort.Combine(deadline, ctx, shutdown)
		defer cancel()

		id, err := cfg.Executor.InitializeEval(ctx)
		if err != nil {
			return struct{}{}, fmt.Errorf("initializing eval: %w", err)
		}
		defer func() {
			if err := cfg.Executor.FinalizeEval(context.WithoutCancel(ctx), id); err != nil {
				log.Warn().Err(err).Str("prompt", root.Name).Msg("finalizing eval")
			}
		}()
		partial, err = pipeline.Run(ctx, cfg, id, root)
		return struct{}{}, err
	})
	<-finished

	if err == nil {
		return partial, nil
	}
	cfg.Progress.Log(root.Name, progress.StateError, "Evaluation failed", err.Error())
	// A prompt settles either with results or as failed. Steps that completed
	// before a later step failed are kept and the failure is only logged.
	if len(partial) > 0 {
		log.Warn().Err(err).Str("prompt", root.Name).Int("completed_steps", len(partial)).Msg("multi-step prompt stopped early")
		return partial, nil
	}
	log.Debug().Err(err).Str("prompt", root.Name).Msg("prompt failed")
	return nil, &result.FailedPrompt{PromptName: root.Name, Error: err.Error(), Stack: stack}
}
