package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records oracle call metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one oracle verification with its duration and outcome.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates oracle call instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"oracle.verify.total",
		metric.WithDescription("Total number of identity oracle verifications"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"oracle.verify.errors",
		metric.WithDescription("Identity oracle verifications that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"oracle.verify.duration_ms",
		metric.WithDescription("Identity oracle verification latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// RecordCall records metrics for one oracle call.
func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("oracle.name", meta.Oracle),
		attribute.Bool("oracle.require_fresh", meta.RequireFresh),
	)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

type noopMetrics struct{}

func (noopMetrics) RecordCall(context.Context, CallMeta, time.Duration, error) {}
