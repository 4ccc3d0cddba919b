// Package abort merges independent cancellation sources into a single
// context. A run-level abort, a per-prompt timeout and an executor shutdown
// are all separate contexts; operations observe whichever fires first.
package abort

import "context"

// Combine returns a context that is done as soon as any non-nil parent is
// done. Nil parents are skipped. When every parent is nil the result only
// ends through the returned CancelFunc. Values are looked up in the first
// non-nil parent, and context.Cause reports the cause of the parent that
// fired first.
//
// Cancelling the combined context never cancels a parent. The combined
// context may itself be passed to Combine again.
func Combine(parents ...context.Context) (context.Context, context.CancelFunc) {
	live := make([]context.Context, 0, len(parents))
	for _, p := range parents {
		if p != nil {
			live = append(live, p)
		}
	}

	if len(live) == 0 {
		ctx, cancel := context.WithCancelCause(context.Background())
		return ctx, func() { cancel(context.Canceled) }
	}
	ctx, cancel := context.WithCancelCause(live[0])

	var stops []func() bool
	for _, p := range live[1:] {
		if p.Err() != nil {
			cancel(context.Cause(p))
			break
		}
		parent := p
		stops = append(stops, context.AfterFunc(parent, func() {
			cancel(context.Cause(parent))
		}))
	}

	return ctx, func() {
		for _, stop := range stops {
			stop()
		}
		cancel(context.Canceled)
	}
}
