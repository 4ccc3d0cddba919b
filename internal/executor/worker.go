package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/tasks"
	"github.com/angular/web-codegen-scorer/internal/worker"
)

// Worker kinds understood by ServeWorker.
const (
	WorkerBuild     = "build"
	WorkerTest      = "test"
	WorkerServeTest = "serve-test"
)

// Command starts a worker child. Args are followed by the worker kind.
type Command struct {
	Path string
	Args []string
	Env  []string

	InactivityTimeout time.Duration
	TotalTimeout      time.Duration
}

// ServeWorker runs the child side of a worker of the given kind.
func ServeWorker(ctx context.Context, kind string, r io.Reader, w io.Writer) error {
	switch kind {
	case WorkerBuild:
		return worker.Serve(ctx, r, w, tasks.Build)
	case WorkerTest:
		return worker.Serve(ctx, r, w, tasks.Test)
	case WorkerServeTest:
		return worker.Serve(ctx, r, w, tasks.ServeTest)
	default:
		return fmt.Errorf("unknown worker %q", kind)
	}
}

func runWorker[Req, Res any](ctx context.Context, c Command, kind, label, app string, p progress.Logger, failure func(string) Res, req Req) (Res, error) {
	args := append(append([]string{}, c.Args...), kind)
	return worker.Run[Req, Res](ctx, worker.Options[Res]{
		Label:             label,
		Path:              c.Path,
		Args:              args,
		Env:               c.Env,
		InactivityTimeout: c.InactivityTimeout,
		TotalTimeout:      c.TotalTimeout,
		OnProgress: func(m worker.Progress) {
			if m.State == worker.StateOutput {
				return
			}
			p.Log(app, progress.State(m.State), m.Message, m.Details)
		},
		Failure: failure,
	}, req)
}

// WorkerServeTester validates a running app in a serve-test worker.
type WorkerServeTester struct {
	Command Command
}

func (t *WorkerServeTester) ServeTest(ctx context.Context, req tasks.ServeTestRequest, p progress.Logger) (*result.ServeTestingResult, error) {
	res, err := runWorker(ctx, t.Command, WorkerServeTest, "Validation of "+req.AppName, req.AppName, p,
		func(msg string) result.ServeTestingResult { return result.ServeTestingResult{ErrorMessage: msg} }, req)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
