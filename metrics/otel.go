package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for newsletter metrics.
const meterName = "github.com/MrEshboboyev/newsletter"

// OTel is a Recorder that emits to an OpenTelemetry meter. If no
// MeterProvider is configured globally, the instruments are noops and
// recording is free.
type OTel struct {
	transitions  metric.Int64Counter
	faults       metric.Int64Counter
	completions  metric.Float64Histogram
	stepDuration metric.Float64Histogram
	stepFailures metric.Int64Counter
}

// NewOTel creates a recorder on the global MeterProvider.
func NewOTel() *OTel {
	return NewOTelWithMeter(otel.Meter(meterName))
}

// NewOTelWithMeter creates a recorder on the provided meter. This variant
// allows injecting a specific MeterProvider for testing.
func NewOTelWithMeter(meter metric.Meter) *OTel {
	o := &OTel{}

	// On error the OTel API returns noop instruments, so the recorder
	// degrades gracefully.
	o.transitions, _ = meter.Int64Counter(
		"newsletter.sagas.transitions.total",
		metric.WithDescription("Total number of saga state transitions"),
		metric.WithUnit("{transition}"),
	)
	o.faults, _ = meter.Int64Counter(
		"newsletter.sagas.faults.total",
		metric.WithDescription("Total number of saga faults"),
		metric.WithUnit("{fault}"),
	)
	o.completions, _ = meter.Float64Histogram(
		"newsletter.sagas.completion.duration",
		metric.WithDescription("End-to-end duration of completed sagas"),
		metric.WithUnit("s"),
	)
	o.stepDuration, _ = meter.Float64Histogram(
		"newsletter.steps.duration",
		metric.WithDescription("Duration of step executions"),
		metric.WithUnit("s"),
	)
	o.stepFailures, _ = meter.Int64Counter(
		"newsletter.steps.failed.total",
		metric.WithDescription("Total number of step execution failures"),
		metric.WithUnit("{failure}"),
	)

	return o
}

// SagaTransition emits one transition count with from/to attributes.
func (o *OTel) SagaTransition(saga, from, to string) {
	o.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("saga", saga),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// SagaFault emits one fault count with state and reason attributes.
func (o *OTel) SagaFault(saga, state, reason string) {
	o.faults.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("saga", saga),
		attribute.String("state", state),
		attribute.String("reason", reason),
	))
}

// SagaCompleted emits one completion duration sample.
func (o *OTel) SagaCompleted(saga string, elapsed time.Duration) {
	o.completions.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(
		attribute.String("saga", saga),
	))
}

// StepSucceeded emits one step duration sample with status "ok".
func (o *OTel) StepSucceeded(step string, elapsed time.Duration) {
	o.stepDuration.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", "ok"),
	))
}

// StepFailed emits one step failure count.
func (o *OTel) StepFailed(step, reason string) {
	o.stepFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("reason", reason),
	))
}
