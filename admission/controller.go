package admission

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/admitkit/errors"
	"github.com/vinayprograms/admitkit/logging"
	"github.com/vinayprograms/admitkit/ratelimit"
	"github.com/vinayprograms/admitkit/telemetry"
)

// State is the controller lifecycle state.
type State int32

const (
	// StateRunning accepts and executes requests.
	StateRunning State = iota
	// StateDraining refuses new requests; queued ones are still resolved.
	StateDraining
	// StateStopped has resolved every request and exited its worker.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Operation is the protected call. It runs on the controller's worker, one
// request at a time.
type Operation[A, R any] func(ctx context.Context, arg A) (R, error)

type request[A, R any] struct {
	id       string
	arg      A
	enqueued time.Time
	future   *Future[R]
	span     trace.Span

	// announced is closed once Submit has recorded the request as queued.
	// The worker waits on it so lifecycle events stay in order.
	announced chan struct{}
}

// Controller admits requests to an operation in FIFO order, only when every
// configured rate limit rule allows it.
type Controller[A, R any] struct {
	op   Operation[A, R]
	gate *ratelimit.Gate
	opts options
	log  *logging.Logger

	queue chan *request[A, R]

	// Submit holds mu.RLock while sending; closing intake takes mu.Lock
	// after closing draining, so no send is in flight once it returns.
	mu        sync.RWMutex
	draining  chan struct{}
	closeOnce sync.Once

	state    atomic.Int32
	pending  sync.WaitGroup
	inflight atomic.Int64

	ctx      context.Context
	cancel   context.CancelCauseFunc
	opCtx    context.Context
	stopOnce sync.Once
	done     chan struct{}
}

// New validates the configuration, builds the rule gate and starts the
// worker. Every rule in opts must have a positive count and window.
func New[A, R any](op Operation[A, R], opts ...Option) (*Controller[A, R], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if op == nil {
		return nil, ErrNoOperation
	}
	if len(o.rules) == 0 {
		return nil, ErrNoRules
	}
	if o.capacity <= 0 {
		return nil, errors.InvalidInput(
			fmt.Sprintf("queue capacity must be positive, got %d", o.capacity),
			errors.WithMetadata("capacity", strconv.Itoa(o.capacity)),
		)
	}
	gate, err := ratelimit.NewGate(o.rules...)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "invalid rate limit rule")
	}

	if o.logger == nil {
		o.logger = logging.Nop()
	}
	if o.tracer == nil {
		o.tracer = telemetry.GetTracer()
	}
	log := o.logger.WithComponent("admission")
	if o.name != "" {
		log = log.With(map[string]interface{}{"controller": o.name})
	}

	ctx, cancel := context.WithCancelCause(o.parent)
	c := &Controller[A, R]{
		op:       op,
		gate:     gate,
		opts:     o,
		log:      log,
		queue:    make(chan *request[A, R], o.capacity),
		draining: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		opCtx:    context.WithoutCancel(o.parent),
		done:     make(chan struct{}),
	}

	rules := make([]string, len(o.rules))
	for i, r := range o.rules {
		rules[i] = r.String()
	}
	log.Info("controller_started", map[string]interface{}{
		"rules":    rules,
		"capacity": o.capacity,
	})

	go c.run()
	return c, nil
}

// Submit enqueues arg and returns the future that will carry its outcome.
// It blocks while the queue is full; ctx bounds only that wait. Once the
// controller is draining or stopped Submit fails with ErrUnavailable.
func (c *Controller[A, R]) Submit(ctx context.Context, arg A) (*Future[R], error) {
	return c.enqueue(ctx, arg, true)
}

// TrySubmit is Submit without blocking: a full queue fails with ErrQueueFull.
func (c *Controller[A, R]) TrySubmit(arg A) (*Future[R], error) {
	return c.enqueue(context.Background(), arg, false)
}

func (c *Controller[A, R]) enqueue(ctx context.Context, arg A, block bool) (*Future[R], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	select {
	case <-c.draining:
		c.opts.metrics.Rejected(telemetry.ReasonUnavailable)
		return nil, ErrUnavailable
	default:
	}

	id := uuid.New().String()
	_, span := c.opts.tracer.StartAdmissionSpan(ctx, id)
	req := &request[A, R]{
		id:        id,
		arg:       arg,
		enqueued:  c.opts.clock(),
		future:    newFuture[R](id),
		span:      span,
		announced: make(chan struct{}),
	}

	// Counted before the send so Drain never sees an accepted request
	// missing from pending.
	c.pending.Add(1)
	c.inflight.Add(1)

	if block {
		select {
		case c.queue <- req:
			return c.accepted(req), nil
		case <-c.draining:
			c.abandon(req, telemetry.ReasonUnavailable, ErrUnavailable)
			return nil, ErrUnavailable
		case <-ctx.Done():
			c.abandon(req, telemetry.ReasonContext, ctx.Err())
			return nil, ctx.Err()
		}
	}

	select {
	case c.queue <- req:
		return c.accepted(req), nil
	default:
		c.abandon(req, telemetry.ReasonQueueFull, ErrQueueFull)
		return nil, ErrQueueFull
	}
}

// accepted records a request that is now in the queue and releases it to
// the worker.
func (c *Controller[A, R]) accepted(req *request[A, R]) *Future[R] {
	depth := max(len(c.queue), 1)
	c.opts.metrics.Submitted()
	c.log.RequestQueued(req.id, depth)
	c.publish(Event{Type: EventQueued, RequestID: req.id, Time: req.enqueued, QueueDepth: depth})
	close(req.announced)
	return req.future
}

// abandon undoes the accounting for a request that never entered the queue.
func (c *Controller[A, R]) abandon(req *request[A, R], reason string, err error) {
	c.opts.metrics.Rejected(reason)
	c.opts.tracer.EndAdmissionSpan(req.span, telemetry.AdmissionSpanOptions{
		RequestID: req.id,
		Outcome:   telemetry.OutcomeCanceled,
	}, err)
	c.publish(Event{Type: EventRejected, RequestID: req.id, Error: eventError(err)})
	c.inflight.Add(-1)
	c.pending.Done()
}

// run is the single worker. It exits once the controller context ends and
// everything still queued has been canceled.
func (c *Controller[A, R]) run() {
	defer c.finish()

	for {
		select {
		case <-c.ctx.Done():
			c.closeIntake()
			c.cancelQueued()
			return
		case req := <-c.queue:
			<-req.announced
			c.opts.metrics.Dequeued()
			c.serve(req)
		}
	}
}

func (c *Controller[A, R]) serve(req *request[A, R]) {
	for {
		if c.ctx.Err() != nil {
			c.cancelRequest(req)
			return
		}

		now := c.opts.clock()
		if c.gate.Admit(now) {
			break
		}

		delay := c.gate.EarliestRetry(now).Sub(now)
		if delay <= 0 {
			delay = ratelimit.FallbackDelay
		}
		c.opts.metrics.GateWait()
		c.log.GateWait(req.id, delay)
		c.opts.tracer.AddGateWaitEvent(req.span, delay)

		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			c.cancelRequest(req)
			return
		case <-timer.C:
		}
	}

	admitted := c.opts.clock()
	waited := admitted.Sub(req.enqueued)
	c.opts.metrics.Admitted(waited)
	c.log.RequestAdmitted(req.id, waited)
	c.publish(Event{Type: EventAdmitted, RequestID: req.id, Time: admitted, Waited: waited})

	val, err := c.invoke(req)
	ran := c.opts.clock().Sub(admitted)

	outcome, event := telemetry.OutcomeSuccess, EventCompleted
	if err != nil {
		outcome, event = telemetry.OutcomeFailure, EventFailed
	}
	c.opts.metrics.Resolved(outcome, ran)
	c.log.RequestCompleted(req.id, ran, err)
	c.opts.tracer.EndAdmissionSpan(req.span, telemetry.AdmissionSpanOptions{
		RequestID: req.id,
		Waited:    waited,
		Ran:       ran,
		Outcome:   outcome,
	}, err)
	c.publish(Event{Type: event, RequestID: req.id, Waited: waited, Ran: ran, Error: eventError(err)})

	c.resolve(req, val, err)
}

// invoke runs the operation with no controller lock held. A panic becomes
// the request's error.
func (c *Controller[A, R]) invoke(req *request[A, R]) (val R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			val, err = zero, errors.RecoverPanic(r)
		}
	}()
	return c.op(trace.ContextWithSpan(c.opCtx, req.span), req.arg)
}

func (c *Controller[A, R]) cancelRequest(req *request[A, R]) {
	cause := context.Cause(c.ctx)
	err := canceledError(req.id, cause)

	c.opts.metrics.Resolved(telemetry.OutcomeCanceled, 0)
	c.log.RequestCanceled(req.id, cause.Error())
	c.opts.tracer.EndAdmissionSpan(req.span, telemetry.AdmissionSpanOptions{
		RequestID: req.id,
		Outcome:   telemetry.OutcomeCanceled,
	}, err)
	c.publish(Event{Type: EventCanceled, RequestID: req.id, Error: eventError(err)})

	var zero R
	c.resolve(req, zero, err)
}

func (c *Controller[A, R]) resolve(req *request[A, R], val R, err error) {
	if req.future.resolve(val, err) {
		c.inflight.Add(-1)
		c.pending.Done()
	}
}

// cancelQueued resolves every request left in the queue. Intake must
// already be closed so nothing can be added concurrently.
func (c *Controller[A, R]) cancelQueued() {
	for {
		select {
		case req := <-c.queue:
			<-req.announced
			c.opts.metrics.Dequeued()
			c.cancelRequest(req)
		default:
			return
		}
	}
}

func (c *Controller[A, R]) closeIntake() {
	c.closeOnce.Do(func() {
		close(c.draining)
		c.mu.Lock()
		c.state.Store(int32(StateDraining))
		c.mu.Unlock()
		c.log.StateChanged(StateRunning.String(), StateDraining.String())
	})
}

func (c *Controller[A, R]) finish() {
	c.state.Store(int32(StateStopped))
	c.log.StateChanged(StateDraining.String(), StateStopped.String())
	close(c.done)
}

// Stop closes intake, cancels every request that has not started and
// waits for the worker to exit or ctx to end. An operation already running
// is allowed to finish. Stop is idempotent. Calling it from inside the
// operation deadlocks unless ctx has a deadline.
func (c *Controller[A, R]) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.closeIntake()
		c.cancel(ErrCanceled)
	})

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain closes intake and waits until every accepted request has been
// resolved, leaving the worker running. If ctx ends first Drain returns
// its error and the remaining requests stay queued.
func (c *Controller[A, R]) Drain(ctx context.Context) error {
	c.closeIntake()

	idle := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnShutdown drains what is queued within ctx, then stops. Requests still
// queued when ctx ends are canceled. It satisfies shutdown.Handler.
func (c *Controller[A, R]) OnShutdown(ctx context.Context) error {
	drainErr := c.Drain(ctx)
	if drainErr != nil {
		c.log.Warn("drain_incomplete", map[string]interface{}{
			"pending": c.Pending(),
			"error":   drainErr,
		})
	}
	stopErr := c.Stop(ctx)
	return errors.Join(drainErr, stopErr)
}

// State returns the current lifecycle state.
func (c *Controller[A, R]) State() State {
	return State(c.state.Load())
}

// Pending returns the number of accepted requests not yet resolved,
// including one that is running.
func (c *Controller[A, R]) Pending() int {
	return int(c.inflight.Load())
}

// Queued returns the number of requests waiting in the queue, not counting
// one the worker has taken.
func (c *Controller[A, R]) Queued() int {
	return len(c.queue)
}

// Usage returns the per-rule window usage at the controller clock's now.
func (c *Controller[A, R]) Usage() []ratelimit.Usage {
	return c.gate.Usage(c.opts.clock())
}

// Done is closed once the worker has exited and every request is resolved.
func (c *Controller[A, R]) Done() <-chan struct{} {
	return c.done
}
