package admission

import (
	"context"
	"time"

	"github.com/vinayprograms/admitkit/bus"
	"github.com/vinayprograms/admitkit/logging"
	"github.com/vinayprograms/admitkit/ratelimit"
	"github.com/vinayprograms/admitkit/telemetry"
)

// DefaultQueueCapacity bounds the queue when WithQueueCapacity is not given.
const DefaultQueueCapacity = 1024

// DefaultSubjectPrefix is the bus subject prefix used by WithBus when the
// prefix is empty.
const DefaultSubjectPrefix = "admission"

// Option configures a Controller.
type Option func(*options)

type options struct {
	name     string
	rules    []ratelimit.Rule
	capacity int
	parent   context.Context
	clock    func() time.Time

	logger  *logging.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics

	bus    bus.Publisher
	prefix string
}

func defaultOptions() options {
	return options{
		capacity: DefaultQueueCapacity,
		parent:   context.Background(),
		clock:    time.Now,
	}
}

// WithRules appends rate limit rules. Every rule must admit a request.
func WithRules(rules ...ratelimit.Rule) Option {
	return func(o *options) {
		o.rules = append(o.rules, rules...)
	}
}

// WithQueueCapacity bounds the number of requests waiting for admission.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithContext ties the controller to ctx. When ctx ends the controller
// stops exactly as if Stop had been called. Operations receive a context
// derived from ctx that keeps its values but is never canceled.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.parent = ctx
		}
	}
}

// WithName labels the controller's logs and events. With WithBus the name
// is a subject token, so it must not contain dots or spaces.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracer sets the tracer for per-request spans. Defaults to the
// global tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithMetrics records queue and outcome metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithBus publishes lifecycle events to "<prefix>.<name>.<event type>",
// leaving out the name token when WithName was not used.
func WithBus(b bus.Publisher, prefix string) Option {
	return func(o *options) {
		o.bus = b
		o.prefix = prefix
		if o.prefix == "" {
			o.prefix = DefaultSubjectPrefix
		}
	}
}

// WithClock replaces the clock used to timestamp requests and evaluate the
// rules. Sleeps between retries still use real time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}
