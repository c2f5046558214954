package cache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Access outcomes recorded on tokencache.access.
const (
	outcomeHit        = "hit"
	outcomeHitExpired = "hit_expired"
	outcomeMiss       = "miss"
)

// Eviction reasons recorded on tokencache.evictions.
const (
	reasonCapacity    = "capacity"
	reasonExpired     = "expired"
	reasonSwept       = "swept"
	reasonInvalidated = "invalidated"
)

var (
	outcomeKey = attribute.Key("outcome")
	reasonKey  = attribute.Key("reason")
)

// instruments holds the cache's OpenTelemetry instruments. The gauges
// are observed from the TokenCache's atomic mirrors so collection never
// takes the store lock.
type instruments struct {
	access    metric.Int64Counter
	evictions metric.Int64Counter
	reg       metric.Registration
}

func newInstruments(meter metric.Meter, c *TokenCache) (*instruments, error) {
	access, err := meter.Int64Counter(
		"tokencache.access",
		metric.WithDescription("Token cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"tokencache.evictions",
		metric.WithDescription("Entries removed from the token cache by reason"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	entries, err := meter.Int64ObservableGauge(
		"tokencache.entries",
		metric.WithDescription("Number of cached tokens"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	size, err := meter.Int64ObservableGauge(
		"tokencache.size_bytes",
		metric.WithDescription("Approximate size of all cached entries"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(entries, c.entries.Load())
		o.ObserveInt64(size, c.bytes.Load())
		return nil
	}, entries, size)
	if err != nil {
		return nil, err
	}

	return &instruments{
		access:    access,
		evictions: evictions,
		reg:       reg,
	}, nil
}

func (m *instruments) recordAccess(ctx context.Context, outcome string) {
	m.access.Add(ctx, 1, metric.WithAttributes(outcomeKey.String(outcome)))
}

func (m *instruments) recordEvictions(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.evictions.Add(ctx, int64(n), metric.WithAttributes(reasonKey.String(reason)))
}

func (m *instruments) unregister() error {
	return m.reg.Unregister()
}
