package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer for the one-span-per-request usage
// pattern observed in the pack's HTTP MCP server (`Tracer.Start(ctx, name)`
// per inbound/outbound call, attributes set for correlation, status set on
// error, span ended via defer).
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps name as an OpenTelemetry tracer name (e.g.
// "mcpcore/peer"). Safe to call even with no SDK configured: otel's global
// no-op tracer is used until a real provider is registered.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// StartOutbound opens a span for an outbound request, tagging it with the
// method name and request id for cross-log correlation.
func (t *Tracer) StartOutbound(ctx context.Context, method, requestID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "mcpcore/peer/call")
	span.SetAttributes(
		attribute.String("mcp.method", method),
		attribute.String("mcp.request_id", requestID),
		attribute.String("mcp.direction", "outbound"),
	)
	return ctx, span
}

// StartInbound opens a span for an inbound request dispatch.
func (t *Tracer) StartInbound(ctx context.Context, method, requestID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "mcpcore/peer/dispatch")
	span.SetAttributes(
		attribute.String("mcp.method", method),
		attribute.String("mcp.request_id", requestID),
		attribute.String("mcp.direction", "inbound"),
	)
	return ctx, span
}

// EndWithError closes span, recording err as the span's status if non-nil.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
