package oracle

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry decorator.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry. Later delays double.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	// Default: 2s
	MaxDelay time.Duration

	// Jitter adds up to 25% random delay to spread out retrying callers.
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: provider failures other than ErrCircuitOpen.
	RetryIf func(err error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func retryable(err error) bool {
	return IsProviderFailure(err) && !errors.Is(err, ErrCircuitOpen)
}

// WithRetry retries failed calls to next with exponential backoff.
// Verdicts on the token are never retried, and neither is a call whose
// caller context has ended.
func WithRetry(next Oracle, config RetryConfig) Oracle {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.MaxAttempts == 1 {
		return next
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 2 * time.Second
	}
	if config.RetryIf == nil {
		config.RetryIf = retryable
	}

	return Func(func(ctx context.Context, token string, requireFresh bool) (*Claims, error) {
		var lastErr error
		for attempt := 1; ; attempt++ {
			claims, err := next.Verify(ctx, token, requireFresh)
			if err == nil {
				return claims, nil
			}
			lastErr = err

			if attempt >= config.MaxAttempts || ctx.Err() != nil || !config.RetryIf(err) {
				return nil, lastErr
			}

			delay := backoff(config, attempt)
			if config.OnRetry != nil {
				config.OnRetry(attempt, err, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			}
		}
	})
}

// backoff returns the delay after the given failed attempt.
func backoff(config RetryConfig, attempt int) time.Duration {
	delay := config.InitialDelay
	for i := 1; i < attempt && delay < config.MaxDelay; i++ {
		delay *= 2
	}
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.Jitter && delay >= 4 {
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}
