package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetrics_Lifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "", "test")
	require.NoError(t, err)

	m.Submitted()
	m.Submitted()
	m.Dequeued()
	m.GateWait()
	m.Admitted(20 * time.Millisecond)
	m.Resolved(OutcomeSuccess, time.Millisecond)
	m.Rejected(ReasonUnavailable)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateWaits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolved.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues(ReasonUnavailable)))

	count, err := testutil.GatherAndCount(reg, "admitkit_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg, "ns", "a")
	require.NoError(t, err)

	_, err = NewMetrics(reg, "ns", "a")
	assert.Error(t, err)

	_, err = NewMetrics(reg, "ns", "b")
	assert.NoError(t, err, "a different controller label must register")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Submitted()
	m.Rejected(ReasonQueueFull)
	m.Dequeued()
	m.GateWait()
	m.Admitted(time.Second)
	m.Resolved(OutcomeCanceled, 0)
}

func TestTracer_AdmissionSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerFromProvider(tp, "test")

	_, span := tracer.StartAdmissionSpan(context.Background(), "req-1")
	tracer.AddGateWaitEvent(span, 30*time.Millisecond)
	tracer.EndAdmissionSpan(span, AdmissionSpanOptions{
		RequestID: "req-1",
		Waited:    30 * time.Millisecond,
		Outcome:   OutcomeFailure,
	}, errors.New("upstream 500"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "admission.request", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	require.Len(t, s.Events(), 2, "gate wait plus recorded error")
	assert.Equal(t, "gate.wait", s.Events()[0].Name)

	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "req-1", attrs["admission.request_id"])
	assert.Equal(t, OutcomeFailure, attrs["admission.outcome"])
	assert.Equal(t, "30", attrs["admission.waited_ms"])
}

func TestGetTracer_DefaultsToNoop(t *testing.T) {
	SetGlobalTracer(nil)
	tr := GetTracer()
	require.NotNil(t, tr)
	_, span := tr.StartAdmissionSpan(context.Background(), "x")
	tr.EndAdmissionSpan(span, AdmissionSpanOptions{Outcome: OutcomeSuccess}, nil)
}

func TestInitProvider_RequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	_, err := InitProvider(context.Background(), ProviderConfig{})
	assert.ErrorIs(t, err, errNoEndpoint)
}

func TestProviderConfig_Resolve(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SERVICE_NAME", "")

	tests := []struct {
		name     string
		in       ProviderConfig
		endpoint string
		insecure bool
		protocol string
		wantErr  bool
	}{
		{"host port", ProviderConfig{Endpoint: "localhost:4317"}, "localhost:4317", false, ProtocolGRPC, false},
		{"http url", ProviderConfig{Endpoint: "http://collector:4318", Protocol: "HTTP"}, "collector:4318", true, ProtocolHTTP, false},
		{"https url", ProviderConfig{Endpoint: "https://collector:4317"}, "collector:4317", false, ProtocolGRPC, false},
		{"bad protocol", ProviderConfig{Endpoint: "localhost:4317", Protocol: "udp"}, "", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.resolve()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, got.Endpoint)
			assert.Equal(t, tt.insecure, got.Insecure)
			assert.Equal(t, tt.protocol, got.Protocol)
			assert.Equal(t, DefaultServiceName, got.ServiceName)
		})
	}
}

func TestProviderConfig_EnvFallback(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_SERVICE_NAME", "coffee")

	got, err := ProviderConfig{}.resolve()
	require.NoError(t, err)
	assert.Equal(t, "otel:4317", got.Endpoint)
	assert.Equal(t, "coffee", got.ServiceName)
}

func TestInitProvider_InstallsAndRestoresGlobal(t *testing.T) {
	t.Cleanup(func() { SetGlobalTracer(nil) })

	p, err := InitProvider(context.Background(), ProviderConfig{
		Endpoint: "http://127.0.0.1:4318",
		Protocol: ProtocolHTTP,
	})
	require.NoError(t, err)
	assert.Same(t, p.Tracer(), GetTracer())
	assert.True(t, p.Config().Insecure)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.OnShutdown(ctx)
	assert.Same(t, NewNoopTracer(), GetTracer())
}
