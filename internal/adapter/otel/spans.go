package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "mailflow"

// StartClassifySpan starts a span for one capability call.
func StartClassifySpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "classify",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("llm.model", model)),
	)
}

// StartDispatchSpan starts a span for handing a classified email to the router.
func StartDispatchSpan(ctx context.Context, workflowType string, confidence float64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("mail.workflow_type", workflowType),
			attribute.Float64("mail.confidence", confidence),
		),
	)
}

// StartForwardSpan starts a span for one forwarding attempt to a handler.
func StartForwardSpan(ctx context.Context, handler, url string, fallback bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "forward",
		trace.WithAttributes(
			attribute.String("mail.handler", handler),
			attribute.String("mail.handler_url", url),
			attribute.Bool("mail.fallback", fallback),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
