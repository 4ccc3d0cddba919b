// Package retry holds the retry policy shared by every LLM call site.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts int
	// Backoff returns the delay before attempt n+1, given n failed attempts.
	Backoff func(n int) time.Duration
	// Retryable reports whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// Default is used for model calls: three attempts, exponential backoff with
// jitter starting around 35 seconds.
var Default = Policy{
	MaxAttempts: 3,
	Backoff:     ExponentialJitter,
}

// ExponentialJitter returns (25 + 10 * 1.35^n) seconds scaled by a random
// factor between 0.8 and 1.2.
func ExponentialJitter(n int) time.Duration {
	base := 25 + 10*math.Pow(1.35, float64(n))
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(base * jitter * float64(time.Second))
}

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// schedule feeds Policy.Backoff to the backoff package.
type schedule struct {
	delay func(n int) time.Duration
	n     int
}

func (s *schedule) NextBackOff() time.Duration {
	var d time.Duration
	if s.delay != nil {
		d = s.delay(s.n)
	}
	s.n++
	return max(d, 0)
}

func (s *schedule) Reset() { s.n = 0 }

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var (
		calls   int
		lastErr error
		stopped error
	)
	op := func() error {
		if err := context.Cause(ctx); err != nil {
			return backoff.Permanent(err)
		}
		calls++
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(lastErr, &perm) {
			stopped = perm.Err
			return perm
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			stopped = lastErr
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}

	// WithMaxRetries treats zero as unlimited.
	var b backoff.BackOff = &backoff.StopBackOff{}
	if attempts > 1 {
		b = backoff.WithMaxRetries(&schedule{delay: p.Backoff}, uint64(attempts-1))
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	switch {
	case err == nil:
		return nil
	case stopped != nil:
		return stopped
	case ctx.Err() != nil:
		if lastErr != nil {
			return fmt.Errorf("%w (last error: %v)", context.Cause(ctx), lastErr)
		}
		return context.Cause(ctx)
	}
	return fmt.Errorf("giving up after %d attempts: %w", calls, lastErr)
}
