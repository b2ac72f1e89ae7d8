// Package admission runs a caller-supplied operation behind a set of
// sliding-window rate limits.
//
// Callers submit arguments and get back a Future. A single worker takes
// requests off a bounded FIFO queue, waits until every rule admits, runs
// the operation and resolves the future with its result. At most one
// operation is in flight at any time.
//
//	ctrl, err := admission.New(brew,
//	    admission.WithRules(ratelimit.PerSecond(10), ratelimit.PerMinute(100)),
//	)
//	if err != nil {
//	    return err
//	}
//	defer ctrl.Stop(context.Background())
//
//	fut, err := ctrl.Submit(ctx, order)
//	if err != nil {
//	    return err // ErrUnavailable once stopping
//	}
//	cup, err := fut.Wait(ctx)
//
// # Lifecycle
//
// Stop closes intake, cancels everything that has not started and waits
// for the worker. Requests canceled this way resolve with an error for
// which IsCanceled reports true; errors returned by the operation are
// passed through unchanged. Drain closes intake but lets queued requests
// run. OnShutdown combines the two so a controller can be registered with
// a shutdown.Coordinator.
//
// # Observability
//
// WithLogger, WithTracer, WithMetrics and WithBus attach logging, one span
// per request, Prometheus collectors and JSON lifecycle events.
package admission
