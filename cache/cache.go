package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/tokencache/observe"
	"github.com/jonwraymond/tokencache/oracle"
)

// Verifier resolves a raw token to its claims.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Verify must honor cancellation/deadlines.
// - Errors: oracle failures are returned unchanged and are never cached.
type Verifier interface {
	// Verify returns the claims for token. bypassCache forces a fresh
	// oracle check and leaves the cache untouched.
	Verify(ctx context.Context, token string, bypassCache bool) (*oracle.Claims, error)
}

// Invalidator drops cached verifications for a subject.
type Invalidator interface {
	// InvalidateBySubject removes every entry whose claims name subject
	// and returns how many were removed.
	InvalidateBySubject(ctx context.Context, subject string) int
}

// Stats is a point-in-time snapshot of cache state and counters.
type Stats struct {
	Entries    int   `json:"entries"`
	Bytes      int64 `json:"bytes"`
	MaxEntries int   `json:"max_entries"`
	MaxBytes   int64 `json:"max_bytes"`

	Hits          uint64 `json:"hits"`
	HitsExpired   uint64 `json:"hits_expired"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
	Swept         uint64 `json:"swept"`
}

// Option configures a TokenCache.
type Option func(*TokenCache)

// WithLogger sets the logger. Default: observe.NopLogger().
func WithLogger(logger observe.Logger) Option {
	return func(c *TokenCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMeter sets the meter the cache instruments are created on.
func WithMeter(meter metric.Meter) Option {
	return func(c *TokenCache) {
		if meter != nil {
			c.meter = meter
		}
	}
}

// WithTracer sets the tracer used for Verify spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *TokenCache) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSizer overrides the entry size estimate.
func WithSizer(sizer Sizer) Option {
	return func(c *TokenCache) {
		if sizer != nil {
			c.sizer = sizer
		}
	}
}

// TokenCache memoizes oracle verifications keyed by the raw token.
type TokenCache struct {
	oracle oracle.Oracle
	config Config

	logger observe.Logger
	meter  metric.Meter
	tracer trace.Tracer
	now    func() time.Time
	sizer  Sizer
	inst   *instruments

	mu    sync.Mutex
	store *store

	// Mirrors of store state, readable without mu.
	entries atomic.Int64
	bytes   atomic.Int64

	hits          atomic.Uint64
	hitsExpired   atomic.Uint64
	misses        atomic.Uint64
	evictions     atomic.Uint64
	invalidations atomic.Uint64
	swept         atomic.Uint64

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a TokenCache in front of o. Zero config fields take their
// defaults. The background sweep does not run until Start is called.
func New(o oracle.Oracle, cfg Config, opts ...Option) (*TokenCache, error) {
	if o == nil {
		return nil, ErrNilOracle
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &TokenCache{
		oracle: o,
		config: cfg,
		logger: observe.NopLogger(),
		meter:  metricnoop.NewMeterProvider().Meter("tokencache"),
		tracer: tracenoop.NewTracerProvider().Tracer("tokencache"),
		now:    time.Now,
		sizer:  DefaultSizer,
	}
	for _, opt := range opts {
		opt(c)
	}

	s, err := newStore(cfg.MaxEntries, cfg.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.store = s

	inst, err := newInstruments(c.meter, c)
	if err != nil {
		return nil, fmt.Errorf("cache: create instruments: %w", err)
	}
	c.inst = inst

	return c, nil
}

// Config returns the effective configuration.
func (c *TokenCache) Config() Config {
	return c.config
}

// Verify returns the claims for token, from the cache when a live entry
// exists and from the oracle otherwise. Successful oracle results are
// cached; failures are returned unchanged and never cached. The returned
// claims belong to the caller and may be modified.
//
// With bypassCache the oracle is asked for a fresh verdict and the cache
// is neither read nor written.
func (c *TokenCache) Verify(ctx context.Context, token string, bypassCache bool) (*oracle.Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	ctx, span := c.tracer.Start(ctx, "tokencache.verify",
		trace.WithAttributes(attribute.Bool("tokencache.bypass", bypassCache)))
	defer span.End()

	if bypassCache {
		claims, err := c.oracle.Verify(ctx, token, true)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		return claims, err
	}

	now := c.now()

	c.mu.Lock()
	c.syncLocked()
	e, ok := c.store.get(token)
	outcome := outcomeHit
	switch {
	case !ok:
		outcome = outcomeMiss
	case e.expired(now):
		c.store.remove(token)
		c.syncLocked()
		outcome = outcomeHitExpired
	}
	c.mu.Unlock()

	span.SetAttributes(attribute.String("tokencache.outcome", outcome))
	c.recordAccess(ctx, outcome)

	if outcome == outcomeHit {
		return e.claims.Clone(), nil
	}

	claims, err := c.oracle.Verify(ctx, token, true)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	c.insert(ctx, token, claims, now)
	return claims, nil
}

// insert stores a private copy of claims for token, so callers may modify
// what Verify returns.
//
// Claims whose effective expiry has already passed are not stored. The next
// Verify of such a token therefore records a miss rather than a
// hit_expired, although both end in an oracle call.
func (c *TokenCache) insert(ctx context.Context, token string, claims *oracle.Claims, now time.Time) {
	e := &entry{
		claims:    claims.Clone(),
		expiresAt: claims.ExpiryTime().Add(-c.config.ExpiryBuffer),
		size:      c.sizer(token, claims),
	}
	if e.expired(now) {
		c.logger.Debug(ctx, "token expires within buffer, not caching",
			observe.Field{Key: "token_fp", Value: fingerprint(token)},
			observe.Field{Key: "subject", Value: claims.Subject},
		)
		return
	}

	c.mu.Lock()
	evicted := c.store.add(token, e)
	c.syncLocked()
	c.mu.Unlock()

	c.recordEvictions(ctx, reasonCapacity, evicted)
}

// InvalidateBySubject removes every entry whose claims name subject,
// expired or not. It is idempotent and returns the number removed.
func (c *TokenCache) InvalidateBySubject(ctx context.Context, subject string) int {
	c.mu.Lock()
	removed := c.store.removeFunc(func(e *entry) bool {
		return e.claims.Subject == subject
	})
	c.syncLocked()
	c.mu.Unlock()

	c.invalidations.Add(uint64(removed))
	c.recordEvictions(ctx, reasonInvalidated, removed)
	c.logger.Info(ctx, "invalidated cached tokens",
		observe.Field{Key: "subject", Value: subject},
		observe.Field{Key: "removed", Value: removed},
	)
	return removed
}

// Sweep removes every entry past its effective expiry and returns the
// number removed.
func (c *TokenCache) Sweep(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	removed := c.store.removeFunc(func(e *entry) bool {
		return e.expired(now)
	})
	c.syncLocked()
	c.mu.Unlock()

	c.swept.Add(uint64(removed))
	c.recordEvictions(ctx, reasonSwept, removed)
	if removed > 0 {
		c.logger.Debug(ctx, "swept expired tokens", observe.Field{Key: "removed", Value: removed})
	}
	return removed
}

// Purge empties the cache.
func (c *TokenCache) Purge() {
	c.mu.Lock()
	c.store.purge()
	c.syncLocked()
	c.mu.Unlock()
}

// Stats returns a snapshot of cache state.
func (c *TokenCache) Stats() Stats {
	c.mu.Lock()
	entries, bytes := c.store.len(), c.store.size()
	c.mu.Unlock()

	return Stats{
		Entries:       entries,
		Bytes:         bytes,
		MaxEntries:    c.config.MaxEntries,
		MaxBytes:      c.config.MaxBytes,
		Hits:          c.hits.Load(),
		HitsExpired:   c.hitsExpired.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
		Swept:         c.swept.Load(),
	}
}

// syncLocked copies store state to the atomic mirrors. Caller holds mu.
func (c *TokenCache) syncLocked() {
	c.entries.Store(int64(c.store.len()))
	c.bytes.Store(c.store.size())
}

func (c *TokenCache) recordAccess(ctx context.Context, outcome string) {
	switch outcome {
	case outcomeHit:
		c.hits.Add(1)
	case outcomeHitExpired:
		c.hitsExpired.Add(1)
		c.recordEvictions(ctx, reasonExpired, 1)
	case outcomeMiss:
		c.misses.Add(1)
	}
	c.inst.recordAccess(ctx, outcome)
}

func (c *TokenCache) recordEvictions(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	if reason == reasonCapacity || reason == reasonExpired {
		c.evictions.Add(uint64(n))
	}
	c.inst.recordEvictions(ctx, reason, n)
}

// Ensure TokenCache implements Verifier and Invalidator
var (
	_ Verifier    = (*TokenCache)(nil)
	_ Invalidator = (*TokenCache)(nil)
)
