package executor

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/angular/web-codegen-scorer/internal/ids"
	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/tasks"
)

// LocalConfig describes how a project is built, tested and served on the
// host.
type LocalConfig struct {
	PackageManager string
	BuildCommand   string
	// ServeCommand defaults to "<pm> run start --port 0". NoServe disables
	// serving entirely.
	ServeCommand string
	NoServe      bool
	TestCommand  string

	BuildTimeout      time.Duration
	TestTimeout       time.Duration
	ServeStartTimeout time.Duration
}

func (c LocalConfig) packageManager() string {
	if c.PackageManager == "" {
		return "npm"
	}
	return c.PackageManager
}

func (c LocalConfig) BuildCmd() string {
	if c.BuildCommand != "" {
		return c.BuildCommand
	}
	return c.packageManager() + " run build"
}

func (c LocalConfig) ServeCmd() string {
	if c.ServeCommand != "" {
		return c.ServeCommand
	}
	if c.packageManager() == "npm" {
		return "npm run start -- --port 0"
	}
	return c.packageManager() + " run start --port 0"
}

func (c LocalConfig) InstallCmd() string {
	return c.packageManager() + " install --silent"
}

// Local runs builds and tests in worker children on this machine.
type Local struct {
	Config    LocalConfig
	Generator Generator
	Worker    Command
	IDs       ids.Generator
}

func NewLocal(cfg LocalConfig, gen Generator, worker Command) *Local {
	return &Local{Config: cfg, Generator: gen, Worker: worker, IDs: &ids.Counter{}}
}

func (l *Local) InitializeEval(context.Context) (result.EvalID, error) {
	return result.EvalID(l.IDs.Next()), nil
}

func (l *Local) GenerateInitialFiles(ctx context.Context, _ result.EvalID, req GenerateRequest) (*Generation, error) {
	return l.Generator.Generate(ctx, req, "", nil)
}

func (l *Local) GenerateRepairFiles(ctx context.Context, _ result.EvalID, req GenerateRequest, errorMessage string, prior []result.File) (*Generation, error) {
	return l.Generator.Generate(ctx, req, errorMessage, prior)
}

func (l *Local) ShouldRepairFailedBuilds(context.Context, result.EvalID) bool {
	return l.Generator.RepairsBuilds()
}

func (l *Local) Build(ctx context.Context, _ result.EvalID, dir string, root result.RootPromptDefinition, q Limiter, p progress.Logger) (result.BuildResult, error) {
	req := tasks.BuildRequest{
		Directory:    dir,
		AppName:      root.Name,
		BuildCommand: l.Config.BuildCmd(),
		Timeout:      l.Config.BuildTimeout,
	}
	var res result.BuildResult
	err := q.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = runWorker(ctx, l.Worker, WorkerBuild, "Build of "+root.Name, root.Name, p, buildFailure, req)
		return err
	})
	return res, err
}

func buildFailure(msg string) result.BuildResult {
	return result.BuildResult{Status: result.BuildError, Message: msg, ErrorType: result.ErrorGeneric}
}

func (l *Local) ExecuteTests(ctx context.Context, _ result.EvalID, dir string, root result.RootPromptDefinition, q Limiter, p progress.Logger) (*result.TestResult, error) {
	if l.Config.TestCommand == "" {
		return nil, nil
	}
	req := tasks.TestRequest{
		Directory:   dir,
		AppName:     root.Name,
		TestCommand: l.Config.TestCommand,
		Timeout:     l.Config.TestTimeout,
	}
	var res result.TestResult
	err := q.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = runWorker(ctx, l.Worker, WorkerTest, "Testing "+root.Name, root.Name, p,
			func(msg string) result.TestResult { return result.TestResult{Output: msg} }, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (l *Local) Serve(ctx context.Context, _ result.EvalID, dir string, root result.RootPromptDefinition, p progress.Logger, fn tasks.WhileServing) (*result.ServeTestingResult, error) {
	if l.Config.NoServe {
		return nil, nil
	}
	p.Log(root.Name, progress.StateServeTesting, "Starting "+l.Config.ServeCmd(), "")
	return tasks.ServeApp(ctx, dir, l.Config.ServeCmd(), l.Config.ServeStartTimeout, fn)
}

func (l *Local) FinalizeEval(context.Context, result.EvalID) error { return nil }

func (l *Local) IsSupportedModel(ctx context.Context, model string) (ModelSupport, error) {
	models, err := l.Generator.Models(ctx)
	if err != nil {
		return ModelSupport{}, err
	}
	if len(models) == 0 {
		return ModelSupport{Supported: true}, nil
	}
	return ModelSupport{Supported: slices.Contains(models, model), AvailableModels: models}, nil
}

func (l *Local) Info() result.ExecutorInfo { return l.Generator.Info() }

func (l *Local) Destroy(context.Context) error {
	log.Debug().Str("executor", l.Info().ID).Msg("executor destroyed")
	return nil
}
