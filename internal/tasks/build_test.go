package tasks_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/tasks"
	"github.com/angular/web-codegen-scorer/internal/worker"
)

func noProgress(worker.Progress) {}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func TestBuildSuccess(t *testing.T) {
	skipWithoutShell(t)
	br, err := tasks.Build(context.Background(), tasks.BuildRequest{
		Directory:    t.TempDir(),
		AppName:      "todo-app",
		BuildCommand: "echo built",
	}, noProgress)
	require.NoError(t, err)
	require.Equal(t, result.BuildSuccess, br.Status)
	require.Equal(t, "built", br.Message)
}

func TestBuildFailureClassified(t *testing.T) {
	skipWithoutShell(t)
	br, err := tasks.Build(context.Background(), tasks.BuildRequest{
		Directory:    t.TempDir(),
		AppName:      "todo-app",
		BuildCommand: `echo 'Could not resolve "zod"' >&2; exit 1`,
	}, noProgress)
	require.NoError(t, err)
	require.Equal(t, result.BuildError, br.Status)
	require.Equal(t, result.ErrorMissingDependency, br.ErrorType)
	require.Equal(t, "zod", br.MissingDependency)
}

func TestBuildTimeout(t *testing.T) {
	skipWithoutShell(t)
	start := time.Now()
	br, err := tasks.Build(context.Background(), tasks.BuildRequest{
		Directory:    t.TempDir(),
		AppName:      "slow-app",
		BuildCommand: "sleep 30",
		Timeout:      100 * time.Millisecond,
	}, noProgress)
	require.NoError(t, err)
	require.Equal(t, result.BuildError, br.Status)
	require.Contains(t, br.Message, "Build of slow-app timed out")
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestTestCommand(t *testing.T) {
	skipWithoutShell(t)
	var states []string
	tr, err := tasks.Test(context.Background(), tasks.TestRequest{
		Directory:   t.TempDir(),
		AppName:     "todo-app",
		TestCommand: "echo '3 passed, 1 failed'; exit 1",
	}, func(p worker.Progress) { states = append(states, p.State) })
	require.NoError(t, err)
	require.False(t, tr.Passed)
	require.InDelta(t, 0.75, tr.PassRate, 0.001)
	require.Equal(t, []string{"test", worker.StateOutput}, states)
}

func TestBuildStreamsOutputLines(t *testing.T) {
	skipWithoutShell(t)
	var lines []string
	br, err := tasks.Build(context.Background(), tasks.BuildRequest{
		Directory:    t.TempDir(),
		AppName:      "todo-app",
		BuildCommand: "echo compiling; printf '50%%\\r100%%\\n'; echo done >&2; printf tail",
	}, func(p worker.Progress) {
		if p.State == worker.StateOutput {
			lines = append(lines, p.Message)
		}
	})
	require.NoError(t, err)
	require.Equal(t, result.BuildSuccess, br.Status)
	require.Equal(t, []string{"compiling", "50%", "100%", "done", "tail"}, lines)
}
