package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/tokencache/oracle"
)

// Middleware wraps oracle calls with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe Oracle.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped oracle are recorded and propagated unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
// Nil components are replaced with no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap instruments every Verify call on next under the given oracle name.
func (m *Middleware) Wrap(name string, next oracle.Oracle) oracle.Oracle {
	logger := m.logger.With(Field{Key: "oracle", Value: name})

	return oracle.Func(func(ctx context.Context, token string, requireFresh bool) (*oracle.Claims, error) {
		meta := CallMeta{Oracle: name, RequireFresh: requireFresh}

		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		claims, err := next.Verify(ctx, token, requireFresh)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordCall(ctx, meta, duration, err)

		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
			{Key: "require_fresh", Value: requireFresh},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			logger.Warn(ctx, "token verification failed", fields...)
		} else {
			fields = append(fields, Field{Key: "subject", Value: claims.Subject})
			logger.Debug(ctx, "token verified", fields...)
		}

		return claims, err
	})
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs *Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
