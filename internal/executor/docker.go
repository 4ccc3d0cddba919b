package executor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/angular/web-codegen-scorer/internal/docker"
	"github.com/angular/web-codegen-scorer/internal/ids"
	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/tasks"
)

// DockerConfig describes the container that builds and tests projects.
type DockerConfig struct {
	Image        string
	BuildCommand string
	TestCommand  string
	Timeout      time.Duration
	CPULimit     float64
	MemoryLimit  int64
}

// Docker builds and tests projects in throwaway containers. It does not
// serve apps.
type Docker struct {
	Config    DockerConfig
	Generator Generator
	IDs       ids.Generator

	run func(ctx context.Context, opts *docker.RunOpts) (*docker.RunResult, error)
}

func NewDocker(cfg DockerConfig, gen Generator) *Docker {
	return &Docker{Config: cfg, Generator: gen, IDs: ids.UUID{}, run: docker.RunContainer}
}

func (d *Docker) InitializeEval(context.Context) (result.EvalID, error) {
	return result.EvalID(d.IDs.Next()), nil
}

func (d *Docker) GenerateInitialFiles(ctx context.Context, _ result.EvalID, req GenerateRequest) (*Generation, error) {
	return d.Generator.Generate(ctx, req, "", nil)
}

func (d *Docker) GenerateRepairFiles(ctx context.Context, _ result.EvalID, req GenerateRequest, errorMessage string, prior []result.File) (*Generation, error) {
	return d.Generator.Generate(ctx, req, errorMessage, prior)
}

func (d *Docker) ShouldRepairFailedBuilds(context.Context, result.EvalID) bool {
	return d.Generator.RepairsBuilds()
}

func (d *Docker) exec(ctx context.Context, id result.EvalID, dir, command string) (*docker.RunResult, error) {
	return d.run(ctx, &docker.RunOpts{
		Image:       d.Config.Image,
		Command:     []string{"sh", "-c", command},
		WorkDir:     dir,
		Timeout:     d.Config.Timeout,
		CPULimit:    d.Config.CPULimit,
		MemoryLimit: d.Config.MemoryLimit,
		Labels:      map[string]string{"eval-id": string(id)},
	})
}

func (d *Docker) Build(ctx context.Context, id result.EvalID, dir string, root result.RootPromptDefinition, q Limiter, p progress.Logger) (result.BuildResult, error) {
	var res result.BuildResult
	err := q.Do(ctx, func(ctx context.Context) error {
		p.Log(root.Name, progress.StateBuild, "Building in "+d.Config.Image, "")
		out, err := d.exec(ctx, id, dir, d.Config.BuildCommand)
		if err != nil {
			return fmt.Errorf("build of %s: %w", root.Name, err)
		}
		switch {
		case out.TimedOut:
			res = buildFailure(fmt.Sprintf("Build of %s timed out after %s", root.Name, d.Config.Timeout))
		case out.ExitCode != 0:
			res = tasks.ClassifyBuildError(tasks.CleanOutput(out.Output))
		default:
			res = result.BuildResult{Status: result.BuildSuccess, Message: tasks.CleanOutput(out.Output)}
		}
		return nil
	})
	return res, err
}

func (d *Docker) ExecuteTests(ctx context.Context, id result.EvalID, dir string, root result.RootPromptDefinition, q Limiter, p progress.Logger) (*result.TestResult, error) {
	if d.Config.TestCommand == "" {
		return nil, nil
	}
	var res *result.TestResult
	err := q.Do(ctx, func(ctx context.Context) error {
		p.Log(root.Name, progress.StateTest, "Testing in "+d.Config.Image, "")
		out, err := d.exec(ctx, id, dir, d.Config.TestCommand)
		if err != nil {
			return fmt.Errorf("testing %s: %w", root.Name, err)
		}
		output := tasks.CleanOutput(out.Output)
		res = &result.TestResult{
			Passed:   out.ExitCode == 0 && !out.TimedOut,
			Output:   output,
			PassRate: tasks.PassRate(output, out.ExitCode),
		}
		return nil
	})
	return res, err
}

func (d *Docker) Serve(context.Context, result.EvalID, string, result.RootPromptDefinition, progress.Logger, tasks.WhileServing) (*result.ServeTestingResult, error) {
	return nil, nil
}

func (d *Docker) FinalizeEval(context.Context, result.EvalID) error { return nil }

func (d *Docker) IsSupportedModel(ctx context.Context, model string) (ModelSupport, error) {
	models, err := d.Generator.Models(ctx)
	if err != nil {
		return ModelSupport{}, err
	}
	if len(models) == 0 {
		return ModelSupport{Supported: true}, nil
	}
	return ModelSupport{Supported: slices.Contains(models, model), AvailableModels: models}, nil
}

func (d *Docker) Info() result.ExecutorInfo {
	info := d.Generator.Info()
	info.DisplayName += " (docker)"
	return info
}

func (d *Docker) Destroy(context.Context) error { return nil }
