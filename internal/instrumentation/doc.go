// Package instrumentation provides OpenTelemetry-based observability.
//
// It wires a MeterProvider and TracerProvider from environment-driven
// configuration and exposes a Metrics recorder with the counters and
// histograms the application records: HTTP traffic, provider API
// operations, authentication flows, exports, and active sessions.
//
// With the default prometheus exporter, metrics are scraped from the
// dedicated metrics server. When INSTRUMENTATION_ENABLED=false every
// recorder is a safe no-op.
package instrumentation
