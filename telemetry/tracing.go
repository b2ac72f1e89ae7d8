// Package telemetry provides OpenTelemetry tracing and Prometheus metrics
// for the admission controller.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer records one span per admission request.
type Tracer struct {
	tracer trace.Tracer
}

var global atomic.Pointer[Tracer]

// SetGlobalTracer installs the tracer returned by GetTracer. nil restores
// the no-op tracer.
func SetGlobalTracer(t *Tracer) {
	global.Store(t)
}

// GetTracer returns the installed tracer, or a no-op one.
func GetTracer() *Tracer {
	if t := global.Load(); t != nil {
		return t
	}
	return noopTracer
}

var noopTracer = &Tracer{tracer: noop.NewTracerProvider().Tracer(InstrumentationName)}

// NewTracerFromProvider returns a tracer that records spans through tp
// under the instrumentation name.
func NewTracerFromProvider(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// NewNoopTracer returns a tracer that records nothing.
func NewNoopTracer() *Tracer {
	return noopTracer
}

// Outcome values recorded on admission spans.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

// AdmissionSpanOptions contains attributes for an admission span.
type AdmissionSpanOptions struct {
	RequestID string
	Waited    time.Duration // time from enqueue to admission
	Ran       time.Duration // time spent in the protected operation
	Outcome   string
}

// StartAdmissionSpan starts a span covering one request from Submit until
// its future resolves. A span in ctx becomes the parent.
func (t *Tracer) StartAdmissionSpan(ctx context.Context, requestID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "admission.request", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("admission.request_id", requestID))
	return ctx, span
}

// AddGateWaitEvent records a backoff while the gate refuses.
func (t *Tracer) AddGateWaitEvent(span trace.Span, delay time.Duration) {
	span.AddEvent("gate.wait", trace.WithAttributes(
		attribute.Int64("gate.delay_ms", delay.Milliseconds()),
	))
}

// EndAdmissionSpan ends an admission span with attributes.
func (t *Tracer) EndAdmissionSpan(span trace.Span, opts AdmissionSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("admission.outcome", opts.Outcome),
		attribute.Int64("admission.waited_ms", opts.Waited.Milliseconds()),
		attribute.Int64("admission.ran_ms", opts.Ran.Milliseconds()),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
