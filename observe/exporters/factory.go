// Package exporters builds the OpenTelemetry exporters behind the token
// cache's traces and metrics.
package exporters

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// otlpConfigured reports whether an OTLP endpoint is set for signal
// ("TRACES" or "METRICS") through the standard environment variables.
func otlpConfigured(signal string) bool {
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		os.Getenv("OTEL_EXPORTER_OTLP_"+signal+"_ENDPOINT") != ""
}

// NewTracingExporter creates a span exporter by name.
// Supported exporters: stdout, otlp, none
func NewTracingExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))

	case "otlp":
		if !otlpConfigured("TRACES") {
			return nil, fmt.Errorf("OTLP endpoint not configured: set OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
		}
		return otlptracegrpc.New(ctx)

	case "none", "":
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))

	default:
		return nil, fmt.Errorf("unknown exporter: %q", name)
	}
}

// MetricsOption customizes NewMetricsReader.
type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	registerer prometheus.Registerer
}

// WithPrometheusRegisterer registers the prometheus exporter's collector
// with r instead of prometheus.DefaultRegisterer.
func WithPrometheusRegisterer(r prometheus.Registerer) MetricsOption {
	return func(o *metricsOptions) {
		o.registerer = r
	}
}

// NewMetricsReader creates a metrics reader by name.
// Supported exporters: stdout, otlp, prometheus, none
func NewMetricsReader(ctx context.Context, name string, opts ...MetricsOption) (sdkmetric.Reader, error) {
	var o metricsOptions
	for _, opt := range opts {
		opt(&o)
	}

	switch name {
	case "stdout":
		return periodic(stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout)))

	case "otlp":
		if !otlpConfigured("METRICS") {
			return nil, fmt.Errorf("OTLP metrics endpoint not configured: set OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
		}
		return periodic(otlpmetricgrpc.New(ctx))

	case "prometheus":
		var promOpts []otelprom.Option
		if o.registerer != nil {
			promOpts = append(promOpts, otelprom.WithRegisterer(o.registerer))
		}
		exp, err := otelprom.New(promOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		return exp, nil

	case "none", "":
		return periodic(stdoutmetric.New(stdoutmetric.WithWriter(io.Discard)))

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", name)
	}
}

// periodic wraps a push exporter in a periodic reader.
func periodic(exp sdkmetric.Exporter, err error) (sdkmetric.Reader, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}
