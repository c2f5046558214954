package cache

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumByAttr(t *testing.T, m metricdata.Metrics, key attribute.Key) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s data = %T, want Sum[int64]", m.Name, m.Data)
	}
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(key)
		out[v.AsString()] += dp.Value
	}
	return out
}

func gaugeValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	g, ok := m.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("%s data = %T, want Gauge[int64]", m.Name, m.Data)
	}
	if len(g.DataPoints) != 1 {
		t.Fatalf("%s has %d data points, want 1", m.Name, len(g.DataPoints))
	}
	return g.DataPoints[0].Value
}

func TestMetrics_AccessAndEvictions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	clock := newFakeClock()
	o := newFakeOracle()
	o.set("a", "alice", clock.Now().Add(10*time.Minute))
	o.set("b", "bob", clock.Now().Add(time.Hour))
	o.set("c", "carol", clock.Now().Add(time.Hour))
	c, err := newTestCache(o, Config{MaxEntries: 2}, clock, WithMeter(meter), WithSizer(fixedSizer(50)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	_, _ = c.Verify(ctx, "a", false) // miss
	_, _ = c.Verify(ctx, "a", false) // hit
	_, _ = c.Verify(ctx, "b", false) // miss
	clock.Advance(6 * time.Minute)
	_, _ = c.Verify(ctx, "a", false) // hit_expired; refreshed claims are inside the buffer
	_, _ = c.Verify(ctx, "c", false) // miss
	c.InvalidateBySubject(ctx, "bob")

	metrics := collect(t, reader)

	access, ok := metrics["tokencache.access"]
	if !ok {
		t.Fatal("tokencache.access not recorded")
	}
	got := sumByAttr(t, access, outcomeKey)
	want := map[string]int64{"miss": 3, "hit": 1, "hit_expired": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("access[%s] = %d, want %d", k, got[k], v)
		}
	}

	ev, ok := metrics["tokencache.evictions"]
	if !ok {
		t.Fatal("tokencache.evictions not recorded")
	}
	reasons := sumByAttr(t, ev, reasonKey)
	if reasons["expired"] != 1 {
		t.Errorf("evictions[expired] = %d, want 1", reasons["expired"])
	}
	if reasons["invalidated"] != 1 {
		t.Errorf("evictions[invalidated] = %d, want 1", reasons["invalidated"])
	}

	if n := gaugeValue(t, metrics["tokencache.entries"]); n != 1 {
		t.Errorf("tokencache.entries = %d, want 1", n)
	}
	if n := gaugeValue(t, metrics["tokencache.size_bytes"]); n != 50 {
		t.Errorf("tokencache.size_bytes = %d, want 50", n)
	}
}

func TestMetrics_CapacityEvictions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	clock := newFakeClock()
	o := newFakeOracle()
	for _, tok := range []string{"a", "b", "c"} {
		o.set(tok, "u", clock.Now().Add(time.Hour))
	}
	c, _ := newTestCache(o, Config{MaxEntries: 1}, clock, WithMeter(provider.Meter("test")))
	ctx := context.Background()

	for _, tok := range []string{"a", "b", "c"} {
		_, _ = c.Verify(ctx, tok, false)
	}

	reasons := sumByAttr(t, collect(t, reader)["tokencache.evictions"], reasonKey)
	if reasons["capacity"] != 2 {
		t.Errorf("evictions[capacity] = %d, want 2", reasons["capacity"])
	}
}

func TestMetrics_UnregisteredOnClose(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	c, _ := New(newFakeOracle(), Config{}, WithMeter(provider.Meter("test")))
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	m, ok := collect(t, reader)["tokencache.entries"]
	if !ok {
		return
	}
	if g, _ := m.Data.(metricdata.Gauge[int64]); len(g.DataPoints) != 0 {
		t.Error("tokencache.entries still observed after Close")
	}
}
