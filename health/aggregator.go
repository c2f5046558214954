package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a full CheckAll pass.
const DefaultCheckTimeout = 5 * time.Second

// Aggregator runs a set of checkers concurrently under one deadline.
type Aggregator struct {
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates an aggregator. A non-positive timeout uses
// DefaultCheckTimeout.
func NewAggregator(timeout ...time.Duration) *Aggregator {
	a := &Aggregator{
		timeout:  DefaultCheckTimeout,
		checkers: make(map[string]Checker),
	}
	if len(timeout) > 0 && timeout[0] > 0 {
		a.timeout = timeout[0]
	}
	return a
}

// Register adds c under c.Name(), replacing any checker of that name.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := c.Name()
	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = c
}

// Names returns registered checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Check runs the named checker alone.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	c, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return run(ctx, c), nil
}

// CheckAll runs every registered checker and returns results by name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checkers := make([]Checker, 0, len(a.order))
	for _, name := range a.order {
		checkers = append(checkers, a.checkers[name])
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Result, len(checkers))
	for i, c := range checkers {
		out[c.Name()] = results[i]
	}
	return out
}

// run executes one check, giving up when ctx ends.
func run(ctx context.Context, c Checker) Result {
	start := time.Now()
	ch := make(chan Result, 1)

	go func() {
		r := c.Check(ctx)
		if r.Timestamp.IsZero() {
			r.Timestamp = start
		}
		ch <- r
	}()

	select {
	case r := <-ch:
		return r.WithDuration(time.Since(start))
	case <-ctx.Done():
		r := Unhealthy("check timed out", ErrCheckTimeout)
		return r.WithDuration(time.Since(start))
	}
}
