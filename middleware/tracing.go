package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEshboboyev/newsletter/message"
)

// tracerName is the instrumentation scope name for newsletter tracing.
const tracerName = "github.com/MrEshboboyev/newsletter"

// Tracing returns middleware that wraps message consumption in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: newsletter.message.id, newsletter.message.name,
// newsletter.consumer, newsletter.correlation_id, newsletter.attempt.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, d *message.Delivery, next Handler) error {
		ctx, span := tracer.Start(ctx, "newsletter.message.consume",
			trace.WithAttributes(
				attribute.String("newsletter.message.id", d.Envelope.ID.String()),
				attribute.String("newsletter.message.name", d.Envelope.Name),
				attribute.String("newsletter.consumer", d.Consumer),
				attribute.String("newsletter.correlation_id", d.Envelope.CorrelationID.String()),
				attribute.Int("newsletter.attempt", d.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
