package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys specific to a load-test request.
const (
	RequestIDKey = attribute.Key("chatstress.request.id")
	ModelKey     = attribute.Key("gen_ai.request.model")
)

// StartRequestSpan starts a client span for one chat-completion request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, id int64, model, target string) (context.Context, trace.Span) {
	spanName := "chat"
	if model != "" {
		spanName = "chat " + model
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String(http.MethodPost),
		RequestIDKey.Int64(id),
	)
	if model != "" {
		span.SetAttributes(ModelKey.String(model))
	}
	if target != "" {
		span.SetAttributes(semconv.URLFull(target))
	}
	return ctx, span
}

// StatusAttr records the response status on a span.
func StatusAttr(status int) attribute.KeyValue {
	return semconv.HTTPResponseStatusCode(status)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
