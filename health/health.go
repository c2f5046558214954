package health

import (
	"context"
	"time"
)

// Status is the health of a component.
type Status int

const (
	// StatusHealthy means the component works normally.
	StatusHealthy Status = iota
	// StatusDegraded means the component works but needs attention.
	StatusDegraded
	// StatusUnhealthy means the component cannot serve.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome of one health check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails returns r with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// WithDuration returns r with its duration set.
func (r Result) WithDuration(d time.Duration) Result {
	r.Duration = d
	return r
}

// Checker is a component that can report its health.
//
// Contract:
// - Concurrency: Check must be safe for concurrent use.
// - Context: Check must honor cancellation/deadlines.
type Checker interface {
	// Name identifies the component in aggregated results.
	Name() string

	// Check reports the component's current health.
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to a named Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a Checker named name that calls fn.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name returns the checker name.
func (f *CheckerFunc) Name() string { return f.name }

// Check calls the wrapped function.
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// Overall folds results into a single status.
func Overall(results map[string]Result) Status {
	status := StatusHealthy
	for _, r := range results {
		if r.Status > status {
			status = r.Status
		}
	}
	return status
}
