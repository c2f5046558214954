package observe

import (
	"fmt"
	"io"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
)

// Config selects the telemetry backends of one process. An empty exporter
// or log level turns that signal off.
type Config struct {
	// ServiceName is reported as service.name on every signal (required).
	ServiceName string

	// Version is reported as service.version. Empty uses the main module
	// version from the build info.
	Version string

	// TraceExporter is otlp, stdout or none.
	TraceExporter string

	// SampleRatio is the fraction of new traces recorded, 0.0 to 1.0.
	// Spans whose parent was sampled are always recorded.
	SampleRatio float64

	// MetricsExporter is otlp, prometheus, stdout or none.
	MetricsExporter string

	// Registerer receives the prometheus collector. Nil means
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// LogLevel is debug, info, warn or error.
	LogLevel string

	// LogWriter receives log lines. Nil means os.Stderr.
	LogWriter io.Writer
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}
	if !slices.Contains(ValidTracingExporters, c.TraceExporter) {
		return fmt.Errorf("%w: unknown tracing exporter: %q", ErrInvalidTracingExporter, c.TraceExporter)
	}
	if c.TraceExporter != "" && (c.SampleRatio < MinSamplePct || c.SampleRatio > MaxSamplePct) {
		return fmt.Errorf("%w, got: %f", ErrInvalidSamplePct, c.SampleRatio)
	}
	if !slices.Contains(ValidMetricsExporters, c.MetricsExporter) {
		return fmt.Errorf("%w: unknown metrics exporter: %q", ErrInvalidMetricsExporter, c.MetricsExporter)
	}
	if !slices.Contains(ValidLogLevels, c.LogLevel) {
		return fmt.Errorf("%w: unknown log level: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}
