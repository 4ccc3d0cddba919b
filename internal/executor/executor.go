// Package executor defines the capabilities an evaluation needs from its
// environment and the variants that provide them.
package executor

import (
	"context"

	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/tasks"
)

// Limiter bounds how many expensive operations run at once.
type Limiter interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// GenerateRequest describes one code generation call.
type GenerateRequest struct {
	Prompt             result.PromptDefinition
	Directory          string
	SystemInstructions string
	// FullPrompt is the system instructions combined with the prompt.
	FullPrompt   string
	Model        string
	ContextFiles []result.ContextFile
}

// Generation is the model output for one request.
type Generation struct {
	Files     []result.File
	Usage     result.Usage
	Reasoning string
}

type ModelSupport struct {
	Supported       bool
	AvailableModels []string
}

// Executor runs the stages of an evaluation. Build, ExecuteTests and the
// serve validation run through the Limiter the caller passes in.
type Executor interface {
	InitializeEval(ctx context.Context) (result.EvalID, error)
	GenerateInitialFiles(ctx context.Context, id result.EvalID, req GenerateRequest) (*Generation, error)
	GenerateRepairFiles(ctx context.Context, id result.EvalID, req GenerateRequest, errorMessage string, prior []result.File) (*Generation, error)
	ShouldRepairFailedBuilds(ctx context.Context, id result.EvalID) bool
	Build(ctx context.Context, id result.EvalID, dir string, root result.RootPromptDefinition, q Limiter, p progress.Logger) (result.BuildResult, error)
	// ExecuteTests returns nil when the project has no test command.
	ExecuteTests(ctx context.Context, id result.EvalID, dir string, root result.RootPromptDefinition, q Limiter, p progress.Logger) (*result.TestResult, error)
	// Serve starts the app and calls fn with its URL. It returns nil when
	// the app is not served.
	Serve(ctx context.Context, id result.EvalID, dir string, root result.RootPromptDefinition, p progress.Logger, fn tasks.WhileServing) (*result.ServeTestingResult, error)
	FinalizeEval(ctx context.Context, id result.EvalID) error
	IsSupportedModel(ctx context.Context, model string) (ModelSupport, error)
	Info() result.ExecutorInfo
	Destroy(ctx context.Context) error
}

// ServeTester validates a running app.
type ServeTester interface {
	ServeTest(ctx context.Context, req tasks.ServeTestRequest, p progress.Logger) (*result.ServeTestingResult, error)
}
