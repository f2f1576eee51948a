package observability

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with pipeline-specific span creation
// methods.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName),
		serviceName: serviceName,
	}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}

// StartBind starts a span for a full bind attempt on an endpoint.
func (t *Tracer) StartBind(ctx context.Context, endpoint string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cmdbind.bind", trace.WithAttributes(
		EndpointAttr(endpoint),
		OperationAttr(OpBind),
	))
}

// StartDecode starts a span for payload deserialization.
func (t *Tracer) StartDecode(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cmdbind.decode", trace.WithAttributes(
		OperationAttr(OpDecode),
	))
}

// StartAuthorize starts a span for running the authorization chain.
func (t *Tracer) StartAuthorize(ctx context.Context, command string, authenticated bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cmdbind.authorize", trace.WithAttributes(
		OperationAttr(OpAuthorize),
		CommandAttr(command),
		AuthenticatedAttr(authenticated),
	))
}

// StartCheck starts a span for a single authorization check.
func (t *Tracer) StartCheck(ctx context.Context, checkName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cmdbind.check", trace.WithAttributes(
		OperationAttr(OpAuthorize),
		CheckAttr(checkName),
	))
}

// StartAuditWrite starts a span for persisting an audit record.
func (t *Tracer) StartAuditWrite(ctx context.Context, command string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cmdbind.audit.write", trace.WithAttributes(
		OperationAttr(OpAudit),
		CommandAttr(command),
	))
}

// SetDecision annotates the current span with an authorization decision.
func (t *Tracer) SetDecision(ctx context.Context, allowed bool, reason string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(AllowedAttr(allowed))
	if reason != "" {
		span.SetAttributes(ReasonAttr(reason))
	}
	if !allowed {
		span.SetStatus(codes.Error, reason)
	}
}

// SetHTTPStatus sets the HTTP status code on the current span.
func (t *Tracer) SetHTTPStatus(ctx context.Context, statusCode int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if statusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(statusCode))
	}
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LoggerWithTrace returns a logger enriched with trace context.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String(LogFieldTraceID, span.SpanContext().TraceID().String()),
		slog.String(LogFieldSpanID, span.SpanContext().SpanID().String()),
	)
}
