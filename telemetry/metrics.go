package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "admitkit"

// Rejection reasons for the rejected counter.
const (
	ReasonUnavailable = "unavailable"
	ReasonQueueFull   = "queue_full"
	ReasonContext     = "context"
)

// Metrics holds the Prometheus collectors for one admission controller.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	submitted  prometheus.Counter
	rejected   *prometheus.CounterVec
	resolved   *prometheus.CounterVec
	queueDepth prometheus.Gauge
	gateWaits  prometheus.Counter
	waitTime   prometheus.Histogram
	runTime    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// name distinguishes controllers sharing a registry and becomes the
// "controller" const label.
func NewMetrics(reg prometheus.Registerer, namespace, name string) (*Metrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	labels := prometheus.Labels{"controller": name}

	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "requests_submitted_total",
			Help:        "Requests accepted into the admission queue.",
			ConstLabels: labels,
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "requests_rejected_total",
			Help:        "Submissions refused before enqueueing, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "requests_resolved_total",
			Help:        "Requests resolved by the worker, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "queue_depth",
			Help:        "Requests waiting in the admission queue.",
			ConstLabels: labels,
		}),
		gateWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "gate_waits_total",
			Help:        "Backoff sleeps taken while the gate refused admission.",
			ConstLabels: labels,
		}),
		waitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "admission_wait_seconds",
			Help:        "Time from enqueue to admission.",
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 10),
			ConstLabels: labels,
		}),
		runTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "operation_duration_seconds",
			Help:        "Time spent in the protected operation.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.submitted, m.rejected, m.resolved, m.queueDepth, m.gateWaits, m.waitTime, m.runTime,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Submitted records a request entering the queue.
func (m *Metrics) Submitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.queueDepth.Inc()
}

// Rejected records a submission refused with the given reason.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// Dequeued records the worker taking a request off the queue.
func (m *Metrics) Dequeued() {
	if m == nil {
		return
	}
	m.queueDepth.Dec()
}

// GateWait records one backoff sleep.
func (m *Metrics) GateWait() {
	if m == nil {
		return
	}
	m.gateWaits.Inc()
}

// Admitted records how long a request waited for admission.
func (m *Metrics) Admitted(waited time.Duration) {
	if m == nil {
		return
	}
	m.waitTime.Observe(waited.Seconds())
}

// Resolved records a request's final outcome. ran is zero for requests
// that never reached the operation.
func (m *Metrics) Resolved(outcome string, ran time.Duration) {
	if m == nil {
		return
	}
	m.resolved.WithLabelValues(outcome).Inc()
	if outcome != OutcomeCanceled {
		m.runTime.Observe(ran.Seconds())
	}
}
