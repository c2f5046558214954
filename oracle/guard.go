package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// WithTimeout bounds every call to next by timeout. A call that runs past
// the deadline fails with ErrTimeout; cancellation by the caller is
// returned unchanged.
func WithTimeout(next Oracle, timeout time.Duration) Oracle {
	if timeout <= 0 {
		return next
	}
	return Func(func(ctx context.Context, token string, requireFresh bool) (*Claims, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		claims, err := next.Verify(callCtx, token, requireFresh)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		}
		return claims, err
	})
}

// WithRateLimit throttles calls to next to limit per second with the given
// burst. Callers block until a slot frees up or their context ends.
func WithRateLimit(next Oracle, limit float64, burst int) Oracle {
	if limit <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	return Func(func(ctx context.Context, token string, requireFresh bool) (*Claims, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("oracle: rate limit wait: %w", err)
		}
		return next.Verify(ctx, token, requireFresh)
	})
}

// WithConcurrencyLimit caps the number of calls to next in flight at once.
// A caller that cannot get a slot within maxWait fails with ErrOverloaded;
// a maxWait of zero fails at once when every slot is taken.
func WithConcurrencyLimit(next Oracle, maxConcurrent int, maxWait time.Duration) Oracle {
	if maxConcurrent <= 0 {
		return next
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	return Func(func(ctx context.Context, token string, requireFresh bool) (*Claims, error) {
		if !sem.TryAcquire(1) {
			if maxWait <= 0 {
				return nil, ErrOverloaded
			}
			waitCtx, cancel := context.WithTimeout(ctx, maxWait)
			err := sem.Acquire(waitCtx, 1)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, ErrOverloaded
			}
		}
		defer sem.Release(1)

		return next.Verify(ctx, token, requireFresh)
	})
}
