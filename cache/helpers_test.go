package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/tokencache/oracle"
)

var epoch = time.Unix(1_700_000_000, 0)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeOracle answers from a fixed table and counts calls.
type fakeOracle struct {
	mu      sync.Mutex
	claims  map[string]*oracle.Claims
	errs    map[string]error
	calls   atomic.Int64
	stale   atomic.Int64 // calls made without requireFresh
	lastTok string
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		claims: make(map[string]*oracle.Claims),
		errs:   make(map[string]error),
	}
}

func (o *fakeOracle) set(token, subject string, exp time.Time) {
	o.mu.Lock()
	o.claims[token] = &oracle.Claims{Subject: subject, IssuedAt: epoch.Unix(), ExpiresAt: exp.Unix()}
	o.mu.Unlock()
}

func (o *fakeOracle) fail(token string, err error) {
	o.mu.Lock()
	o.errs[token] = err
	o.mu.Unlock()
}

func (o *fakeOracle) Verify(_ context.Context, token string, requireFresh bool) (*oracle.Claims, error) {
	o.calls.Add(1)
	if !requireFresh {
		o.stale.Add(1)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastTok = token
	if err, ok := o.errs[token]; ok {
		return nil, err
	}
	if c, ok := o.claims[token]; ok {
		return c, nil
	}
	return nil, oracle.ErrInvalidCredentials
}

// fixedSizer charges size bytes for every entry.
func fixedSizer(size int64) Sizer {
	return func(string, *oracle.Claims) int64 { return size }
}

func newTestCache(o oracle.Oracle, cfg Config, clock *fakeClock, opts ...Option) (*TokenCache, error) {
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(o, cfg, opts...)
}
