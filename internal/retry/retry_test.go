package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noWait(int) time.Duration { return 0 }

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, Backoff: noWait}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	flaky := errors.New("flaky")
	p := Policy{MaxAttempts: 2, Backoff: noWait}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return flaky
	})
	require.ErrorIs(t, err, flaky)
	require.Equal(t, 2, calls)
}

func TestDoNotRetryable(t *testing.T) {
	calls := 0
	fatal := errors.New("bad request")
	p := Policy{
		MaxAttempts: 5,
		Backoff:     noWait,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDoPermanent(t *testing.T) {
	calls := 0
	base := errors.New("invalid key")
	err := Policy{MaxAttempts: 4, Backoff: noWait}.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(base)
	})
	require.Equal(t, base, err)
	require.Equal(t, 1, calls)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Backoff: func(int) time.Duration { return time.Hour }}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(context.Context) error { return errors.New("rate limited") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestDoCancelledBeforeFirstAttempt(t *testing.T) {
	reason := errors.New("run aborted")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(reason)

	calls := 0
	err := Default.Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, reason)
	require.Zero(t, calls)
}

func TestDoFollowsBackoffSchedule(t *testing.T) {
	var asked []int
	p := Policy{MaxAttempts: 4, Backoff: func(n int) time.Duration {
		asked = append(asked, n)
		return 0
	}}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("flaky")
	})
	require.ErrorContains(t, err, "giving up after 4 attempts")
	require.Equal(t, 4, calls)
	require.Equal(t, []int{0, 1, 2}, asked)
}

func TestDoSingleAttempt(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 1, Backoff: noWait}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("flaky")
	})
	require.ErrorContains(t, err, "giving up after 1 attempts")
	require.Equal(t, 1, calls)
}

func TestExponentialJitterRange(t *testing.T) {
	for n := 0; n < 4; n++ {
		d := ExponentialJitter(n).Seconds()
		base := 25 + 10*pow(1.35, n)
		require.GreaterOrEqual(t, d, base*0.8-0.001)
		require.LessOrEqual(t, d, base*1.2+0.001)
	}
}

func pow(b float64, n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= b
	}
	return r
}
