package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/tokencache/health"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed means calls flow to the oracle normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen means calls fail fast with ErrCircuitOpen.
	BreakerOpen
	// BreakerHalfOpen means a limited number of trial calls are allowed.
	BreakerHalfOpen
)

// String returns the string representation of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker decorator.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive provider failures before
	// opening the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max concurrent trial calls in half-open state.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to BreakerState)

	// IsFailure determines if an error counts as a provider failure.
	// Default: IsProviderFailure.
	IsFailure func(err error) bool
}

// IsProviderFailure reports whether err indicates the provider itself is
// unhealthy. Rejections of a bad token are verdicts, not failures, and so
// is the caller giving up.
func IsProviderFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, verdict := range []error{
		ErrTokenMalformed,
		ErrTokenExpired,
		ErrTokenRevoked,
		ErrTokenInactive,
		ErrInvalidCredentials,
		ErrKeyNotFound,
		context.Canceled,
	} {
		if errors.Is(err, verdict) {
			return false
		}
	}
	return true
}

// Breaker is an Oracle decorator implementing the circuit breaker pattern.
type Breaker struct {
	next   Oracle
	config BreakerConfig
	now    func() time.Time

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	halfOpenCount int
}

// WithCircuitBreaker wraps next with a circuit breaker.
func WithCircuitBreaker(next Oracle, config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = IsProviderFailure
	}

	return &Breaker{
		next:   next,
		config: config,
		now:    time.Now,
		state:  BreakerClosed,
	}
}

// Verify forwards to the wrapped oracle unless the circuit is open.
func (b *Breaker) Verify(ctx context.Context, token string, requireFresh bool) (*Claims, error) {
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	claims, err := b.next.Verify(ctx, token, requireFresh)
	b.afterCall(err)
	return claims, err
}

// State returns the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}

// Name returns the health checker name.
func (b *Breaker) Name() string {
	return "oracle"
}

// Check maps the circuit state to health: an open circuit means the
// oracle is unreachable, a half-open one that it is being retried.
func (b *Breaker) Check(_ context.Context) health.Result {
	b.mu.Lock()
	state := b.currentStateLocked()
	failures := b.failures
	b.mu.Unlock()

	details := map[string]any{
		"state":    state.String(),
		"failures": failures,
	}
	switch state {
	case BreakerOpen:
		return health.Unhealthy("oracle circuit open", ErrCircuitOpen).WithDetails(details)
	case BreakerHalfOpen:
		return health.Degraded("oracle circuit half-open").WithDetails(details)
	default:
		return health.Healthy("oracle circuit closed").WithDetails(details)
	}
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case BreakerOpen:
		return ErrCircuitOpen
	case BreakerHalfOpen:
		if b.halfOpenCount >= b.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		b.halfOpenCount++
	}
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.config.IsFailure(err)

	switch b.state {
	case BreakerClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.config.MaxFailures {
			b.openedAt = b.now()
			b.setStateLocked(BreakerOpen)
		}

	case BreakerHalfOpen:
		if failed {
			b.openedAt = b.now()
			b.setStateLocked(BreakerOpen)
			return
		}
		b.failures = 0
		b.setStateLocked(BreakerClosed)
	}
}

func (b *Breaker) currentStateLocked() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.config.ResetTimeout {
		b.setStateLocked(BreakerHalfOpen)
	}
	return b.state
}

func (b *Breaker) setStateLocked(state BreakerState) {
	from := b.state
	b.state = state
	if state == BreakerHalfOpen {
		b.halfOpenCount = 0
	}
	if from != state && b.config.OnStateChange != nil {
		b.config.OnStateChange(from, state)
	}
}

// Ensure Breaker implements Oracle and health.Checker
var (
	_ Oracle         = (*Breaker)(nil)
	_ health.Checker = (*Breaker)(nil)
)
