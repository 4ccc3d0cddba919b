package executortest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angular/web-codegen-scorer/internal/executor"
	"github.com/angular/web-codegen-scorer/internal/executor/executortest"
	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/result"
)

var _ executor.Executor = (*executortest.Fake)(nil)

type direct struct{}

func (direct) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

var root = result.RootPromptDefinition{Kind: result.KindSingle, Name: "todo"}

func TestFakeScripts(t *testing.T) {
	f := &executortest.Fake{
		Builds: map[string][]result.BuildResult{
			"todo": {{Status: result.BuildError, Message: "boom"}, {Status: result.BuildSuccess}},
		},
		Tests: map[string][]result.TestResult{},
	}
	ctx := context.Background()

	id, err := f.InitializeEval(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.OpenEvals())

	b1, err := f.Build(ctx, id, "", root, direct{}, progress.Nop{})
	require.NoError(t, err)
	require.Equal(t, result.BuildError, b1.Status)
	b2, _ := f.Build(ctx, id, "", root, direct{}, progress.Nop{})
	b3, _ := f.Build(ctx, id, "", root, direct{}, progress.Nop{})
	require.Equal(t, result.BuildSuccess, b2.Status)
	require.Equal(t, result.BuildSuccess, b3.Status)
	require.Equal(t, 3, f.BuildCalls("todo"))

	tr, err := f.ExecuteTests(ctx, id, "", root, direct{}, progress.Nop{})
	require.NoError(t, err)
	require.True(t, tr.Passed)

	require.NoError(t, f.FinalizeEval(ctx, id))
	require.Error(t, f.FinalizeEval(ctx, id), "finalizing twice")
	require.Equal(t, 0, f.OpenEvals())
}

func TestFakeDelayHonoursCancel(t *testing.T) {
	f := &executortest.Fake{Delay: time.Minute}
	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("stop")
	cancel(cause)

	_, err := f.GenerateInitialFiles(ctx, "x", executor.GenerateRequest{})
	require.ErrorIs(t, err, cause)
}
