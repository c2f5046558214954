package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/tokencache/health"
	"github.com/jonwraymond/tokencache/observe"
)

// degradedFill is the fill ratio at which Check reports degraded.
const degradedFill = 0.95

// Start launches the background sweep, which runs every SweepInterval
// until ctx ends or Close is called. Calling Start more than once has no
// effect.
func (c *TokenCache) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		c.done = make(chan struct{})
		go c.sweepLoop(ctx)
	})
}

// Close stops the background sweep and waits for it to exit. It is safe
// to call more than once and without a prior Start. Cached entries stay
// readable after Close.
func (c *TokenCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		// Block a later Start from launching a sweep nobody will stop.
		c.startOnce.Do(func() {})
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
		err = c.inst.unregister()
	})
	return err
}

func (c *TokenCache) sweepLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.safeSweep(ctx)
		}
	}
}

// safeSweep runs one sweep, logging instead of crashing on panic so a
// single bad pass does not stop later ones.
func (c *TokenCache) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "token cache sweep panicked",
				observe.Field{Key: "panic", Value: fmt.Sprint(r)},
			)
		}
	}()
	c.Sweep(ctx)
}

// Name returns the health checker name.
func (c *TokenCache) Name() string {
	return "token_cache"
}

// Check reports cache fill. The cache is degraded, never unhealthy, once
// either bound is at least 95% used; eviction keeps it working.
func (c *TokenCache) Check(ctx context.Context) health.Result {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return health.Unhealthy("context cancelled", err)
	}

	st := c.Stats()
	entryFill := float64(st.Entries) / float64(st.MaxEntries)
	byteFill := float64(st.Bytes) / float64(st.MaxBytes)
	fill := max(entryFill, byteFill)

	details := map[string]any{
		"entries":     st.Entries,
		"max_entries": st.MaxEntries,
		"bytes":       st.Bytes,
		"max_bytes":   st.MaxBytes,
		"hits":        st.Hits,
		"misses":      st.Misses,
	}

	var result health.Result
	if fill >= degradedFill {
		result = health.Degraded(fmt.Sprintf("token cache %.1f%% full", fill*100))
	} else {
		result = health.Healthy(fmt.Sprintf("token cache %.1f%% full", fill*100))
	}
	return result.WithDetails(details).WithDuration(time.Since(start))
}

// Ensure TokenCache implements health.Checker
var _ health.Checker = (*TokenCache)(nil)
