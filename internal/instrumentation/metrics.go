package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrOutcome   = "outcome"
	attrFormat    = "format"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeSessions      metric.Int64UpDownCounter

	// Provider API metrics
	mailAPIOperationsTotal   metric.Int64Counter
	mailAPIOperationDuration metric.Float64Histogram

	// Auth and export metrics
	authFlowsTotal metric.Int64Counter
	exportsTotal   metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"sessions_active",
		metric.WithDescription("Number of active user sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions_active gauge: %w", err)
	}

	// Provider API Metrics
	m.mailAPIOperationsTotal, err = meter.Int64Counter(
		"mailtm_api_operations_total",
		metric.WithDescription("Total number of mail.tm API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailtm_api_operations_total counter: %w", err)
	}

	m.mailAPIOperationDuration, err = meter.Float64Histogram(
		"mailtm_api_operation_duration_seconds",
		metric.WithDescription("mail.tm API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailtm_api_operation_duration_seconds histogram: %w", err)
	}

	// Auth Metrics
	m.authFlowsTotal, err = meter.Int64Counter(
		"auth_flows_total",
		metric.WithDescription("Total number of authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_flows_total counter: %w", err)
	}

	// Export Metrics
	m.exportsTotal, err = meter.Int64Counter(
		"exports_total",
		metric.WithDescription("Total number of inbox and account exports"),
		metric.WithUnit("{export}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exports_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordMailAPIOperation records a provider API operation.
//
// Parameters:
//   - operation: operation name (login, create_account, list_messages, ...)
//   - status: result status ("success" or "error")
//   - duration: time taken for the operation
func (m *Metrics) RecordMailAPIOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m.mailAPIOperationsTotal == nil || m.mailAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.mailAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.mailAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAuthFlow records an authentication attempt.
// Method is "password" or "github"; outcome is "success" or "error".
func (m *Metrics) RecordAuthFlow(ctx context.Context, method, outcome string) {
	if m.authFlowsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrOutcome, outcome),
	}

	m.authFlowsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordExport records an inbox or account export with its format.
func (m *Metrics) RecordExport(ctx context.Context, format string) {
	if m.exportsTotal == nil {
		return // Instrumentation not initialized
	}

	m.exportsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrFormat, format)))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, -1)
}
