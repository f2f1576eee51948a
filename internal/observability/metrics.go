package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the binding pipeline's metric instruments.
type Metrics struct {
	bindDuration    metric.Float64Histogram
	bindCount       metric.Int64Counter
	decisionCount   metric.Int64Counter
	payloadSize     metric.Int64Histogram
	auditDuration   metric.Float64Histogram
	errorCount      metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Note: errors from meter instrument creation are unlikely in practice
	// and would only occur with invalid parameters. We use explicit checks
	// to satisfy the linter while continuing with partial metrics on error.
	var err error

	m.bindDuration, err = meter.Float64Histogram(
		"cmdbind.bind.duration",
		metric.WithDescription("Duration of bind attempts in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.bindDuration, _ = meter.Float64Histogram("cmdbind.bind.duration")
	}

	m.bindCount, err = meter.Int64Counter(
		"cmdbind.bind.count",
		metric.WithDescription("Total number of bind attempts"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.bindCount, _ = meter.Int64Counter("cmdbind.bind.count")
	}

	m.decisionCount, err = meter.Int64Counter(
		"cmdbind.authz.decision.count",
		metric.WithDescription("Total number of authorization decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		m.decisionCount, _ = meter.Int64Counter("cmdbind.authz.decision.count")
	}

	m.payloadSize, err = meter.Int64Histogram(
		"cmdbind.payload.size",
		metric.WithDescription("Size of decoded command payloads in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		m.payloadSize, _ = meter.Int64Histogram("cmdbind.payload.size")
	}

	m.auditDuration, err = meter.Float64Histogram(
		"cmdbind.audit.write.duration",
		metric.WithDescription("Duration of audit record writes in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.auditDuration, _ = meter.Float64Histogram("cmdbind.audit.write.duration")
	}

	m.errorCount, err = meter.Int64Counter(
		"cmdbind.error.count",
		metric.WithDescription("Total number of bind failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("cmdbind.error.count")
	}

	return m
}

// RecordBind records metrics for a completed bind attempt.
func (m *Metrics) RecordBind(ctx context.Context, endpoint, command string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		EndpointAttr(endpoint),
		CommandAttr(command),
		attribute.Int("http.status_code", statusCode),
	)
	m.bindDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.bindCount.Add(ctx, 1, attrs)
}

// RecordDecision records an authorization decision.
func (m *Metrics) RecordDecision(ctx context.Context, command string, allowed bool, reason string) {
	attrs := []attribute.KeyValue{
		CommandAttr(command),
		AllowedAttr(allowed),
	}
	if reason != "" {
		attrs = append(attrs, ReasonAttr(reason))
	}
	m.decisionCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayloadSize records the size of a decoded payload.
func (m *Metrics) RecordPayloadSize(ctx context.Context, command string, size int) {
	attrs := metric.WithAttributes(CommandAttr(command))
	m.payloadSize.Record(ctx, int64(size), attrs)
}

// RecordAuditWrite records metrics for an audit store write.
func (m *Metrics) RecordAuditWrite(ctx context.Context, duration time.Duration) {
	m.auditDuration.Record(ctx, float64(duration.Milliseconds()))
}

// RecordError records a bind failure.
func (m *Metrics) RecordError(ctx context.Context, endpoint, command, reason string) {
	attrs := metric.WithAttributes(
		EndpointAttr(endpoint),
		CommandAttr(command),
		ReasonAttr(reason),
	)
	m.errorCount.Add(ctx, 1, attrs)
}
