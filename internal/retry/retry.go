// Package retry runs external calls under a per-attempt timeout with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kailas-cloud/emsal/internal/domain"
)

// Policy configures retries for one external capability.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the wait before the first retry. Zero retries immediately.
	BaseDelay  time.Duration
	Multiplier float64
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt. Zero means only the parent context applies.
	AttemptTimeout time.Duration
}

// Delay returns the wait before retry n (0-based).
func (p Policy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Budget returns the longest time Do can take when every attempt runs to
// AttemptTimeout. Zero when AttemptTimeout is unset.
func (p Policy) Budget() time.Duration {
	if p.AttemptTimeout <= 0 {
		return 0
	}
	total := time.Duration(p.MaxRetries+1) * p.AttemptTimeout
	for n := range p.MaxRetries {
		total += p.Delay(n)
	}
	return total
}

// Do calls fn until it succeeds, fails with a non-transient error, retries run out,
// or ctx is done. An attempt that hits AttemptTimeout while ctx is still alive
// is reported as domain.ErrTimeout and is retried.
// The returned int is the number of attempts made.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	var lastErr error
	attempts := 0

	for n := 0; n <= p.MaxRetries; n++ {
		if n > 0 {
			if err := sleep(ctx, p.Delay(n-1)); err != nil {
				return zero, attempts, fmt.Errorf("%w (last error: %w)", err, lastErr)
			}
		}
		attempts++

		v, err := attempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return v, attempts, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, attempts, fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		if !domain.IsTransient(err) {
			return zero, attempts, err
		}
	}
	return zero, attempts, lastErr
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(actx)
	if err != nil && actx.Err() != nil && ctx.Err() == nil && !domain.IsTransient(err) {
		err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return v, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
