package observe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/tokencache/observe/exporters"
)

// Observer owns the tracer, meter and logger of one process. Signals that
// are switched off in Config are served by no-op implementations.
type Observer struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger Logger

	shutdowns    []func(context.Context) error
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewObserver builds the providers selected by cfg and installs them as
// the OpenTelemetry globals.
func NewObserver(ctx context.Context, cfg Config) (*Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Version == "" {
		cfg.Version = buildVersion()
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	o := &Observer{
		tracer: tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
		meter:  metricnoop.NewMeterProvider().Meter(cfg.ServiceName),
		logger: NopLogger(),
	}

	if cfg.TraceExporter != "" {
		exp, err := exporters.NewTracingExporter(ctx, cfg.TraceExporter)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
			sdktrace.WithBatcher(exp),
		)
		otel.SetTracerProvider(tp)
		o.tracer = tp.Tracer(cfg.ServiceName)
		o.shutdowns = append(o.shutdowns, tp.Shutdown)
	}

	if cfg.MetricsExporter != "" {
		var readerOpts []exporters.MetricsOption
		if cfg.Registerer != nil {
			readerOpts = append(readerOpts, exporters.WithPrometheusRegisterer(cfg.Registerer))
		}
		reader, err := exporters.NewMetricsReader(ctx, cfg.MetricsExporter, readerOpts...)
		if err != nil {
			_ = o.Shutdown(ctx)
			return nil, fmt.Errorf("failed to setup metrics: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
		otel.SetMeterProvider(mp)
		o.meter = mp.Meter(cfg.ServiceName)
		o.shutdowns = append(o.shutdowns, mp.Shutdown)
	}

	if cfg.LogLevel != "" {
		w := cfg.LogWriter
		if w == nil {
			w = os.Stderr
		}
		o.logger = NewLoggerWithWriter(cfg.LogLevel, w).With(
			Field{Key: "service", Value: cfg.ServiceName},
			Field{Key: "version", Value: cfg.Version},
		)
	}

	return o, nil
}

// buildVersion returns the main module version, or "devel" when the
// binary was not built from a tagged module.
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "devel"
}

// Tracer returns the configured tracer.
func (o *Observer) Tracer() trace.Tracer { return o.tracer }

// Meter returns the configured meter.
func (o *Observer) Meter() metric.Meter { return o.meter }

// Logger returns the configured logger.
func (o *Observer) Logger() Logger { return o.logger }

// Shutdown flushes and stops every provider. Later calls return the
// result of the first.
func (o *Observer) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		var errs []error
		for _, fn := range o.shutdowns {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		o.shutdownErr = errors.Join(errs...)
	})
	return o.shutdownErr
}
