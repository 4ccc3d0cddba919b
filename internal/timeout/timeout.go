// Package timeout bounds an operation by a deadline.
package timeout

import (
	"context"
	"fmt"
	"time"
)

// Error reports that a guarded operation ran past its deadline.
type Error struct {
	Label    string
	Duration time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Label, e.Duration)
}

// Run calls op with a fresh context derived from ctx. If op has not returned
// after d, the context passed to op is cancelled with a *Error cause and Run
// returns that *Error without waiting for op to observe the cancellation.
// If ctx ends first, Run returns its cause.
func Run[T any](ctx context.Context, label string, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := context.Cause(ctx); err != nil {
		return zero, err
	}

	opCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	timer := time.NewTimer(d)
	defer timer.Stop()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := op(opCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-timer.C:
		err := &Error{Label: label, Duration: d}
		cancel(err)
		return zero, err
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	}
}

// Minutes is a convenience for the minute based limits used in configs.
func Minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
