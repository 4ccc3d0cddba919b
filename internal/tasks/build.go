package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/timeout"
	"github.com/angular/web-codegen-scorer/internal/worker"
)

type BuildRequest struct {
	Directory    string        `cbor:"directory"`
	AppName      string        `cbor:"app_name"`
	BuildCommand string        `cbor:"build_command"`
	Timeout      time.Duration `cbor:"timeout"`
}

// Build runs the build command of a generated project.
func Build(ctx context.Context, req BuildRequest, progress func(worker.Progress)) (result.BuildResult, error) {
	progress(worker.Progress{State: "build", Message: "Running " + req.BuildCommand})

	out, exitCode, err := runCommand(ctx, "Build of "+req.AppName, req.Directory, req.BuildCommand, req.Timeout, progress)
	var te *timeout.Error
	switch {
	case errors.As(err, &te):
		return result.BuildResult{Status: result.BuildError, Message: te.Error(), ErrorType: result.ErrorGeneric}, nil
	case err != nil:
		return result.BuildResult{}, err
	case exitCode != 0:
		return ClassifyBuildError(out), nil
	}
	return result.BuildResult{Status: result.BuildSuccess, Message: out}, nil
}

type TestRequest struct {
	Directory   string        `cbor:"directory"`
	AppName     string        `cbor:"app_name"`
	TestCommand string        `cbor:"test_command"`
	Timeout     time.Duration `cbor:"timeout"`
}

// Test runs the project's test command.
func Test(ctx context.Context, req TestRequest, progress func(worker.Progress)) (result.TestResult, error) {
	progress(worker.Progress{State: "test", Message: "Running " + req.TestCommand})

	out, exitCode, err := runCommand(ctx, "Testing "+req.AppName, req.Directory, req.TestCommand, req.Timeout, progress)
	var te *timeout.Error
	switch {
	case errors.As(err, &te):
		return result.TestResult{Passed: false, Output: te.Error()}, nil
	case err != nil:
		return result.TestResult{}, err
	}
	return result.TestResult{
		Passed:   exitCode == 0,
		Output:   out,
		PassRate: PassRate(out, exitCode),
	}, nil
}

// runCommand runs line through the shell, returning cleaned combined output
// and the exit code. A non-zero exit is not an error. Every output line is
// forwarded as StateOutput progress while the command runs.
func runCommand(ctx context.Context, label, dir, line string, d time.Duration, progress func(worker.Progress)) (string, int, error) {
	if d <= 0 {
		d = 4 * time.Minute
	}
	type outcome struct {
		out  []byte
		code int
	}
	o, err := timeout.Run(ctx, label, d, func(ctx context.Context) (outcome, error) {
		w := &lineWriter{emit: func(l string) {
			progress(worker.Progress{State: worker.StateOutput, Message: l})
		}}
		cmd := worker.Shell(ctx, dir, line)
		cmd.Stdout = w
		cmd.Stderr = w
		err := cmd.Run()
		w.flush()

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return outcome{w.bytes(), exitErr.ExitCode()}, nil
		}
		if err != nil {
			return outcome{}, fmt.Errorf("running %q: %w", line, err)
		}
		return outcome{w.bytes(), 0}, nil
	})
	if err != nil {
		return "", 0, err
	}
	return CleanOutput(string(o.out)), o.code, nil
}

// lineWriter collects everything written to it and calls emit for each
// complete line. Carriage returns end a line too, so progress bars count.
type lineWriter struct {
	mu      sync.Mutex
	all     bytes.Buffer
	partial []byte
	emit    func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.all.Write(p)
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexAny(w.partial, "\r\n")
		if i < 0 {
			break
		}
		if i > 0 {
			w.emit(string(w.partial[:i]))
		}
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emit(string(w.partial))
		w.partial = nil
	}
}

func (w *lineWriter) bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.all.Bytes()
}
