// Package observe wires OpenTelemetry tracing and metrics plus a JSON
// structured logger for the token cache and its daemon.
//
// It is a pure instrumentation library: no verification, no transport, no
// I/O beyond exporter setup. Consumers pass Observer.Meter, Observer.Tracer
// and Observer.Logger into cache.New.
//
// Field keys listed in RedactedFields (token, authorization, ...) are
// replaced with "[REDACTED]" before a log entry is written, so raw bearer
// credentials never reach the log sink.
package observe
