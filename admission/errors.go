package admission

import (
	stderrors "errors"

	"github.com/vinayprograms/admitkit/errors"
	"github.com/vinayprograms/admitkit/ratelimit"
)

// Sentinel errors. Compare with the standard library's errors.Is.
var (
	// ErrNoOperation is returned by New when the operation is nil.
	ErrNoOperation = errors.InvalidInput("admission operation is required")

	// ErrNoRules is returned by New when no rate limit rule is configured.
	ErrNoRules = errors.InvalidInput("no rate limit rules configured", errors.WithCause(ratelimit.ErrNoRules))

	// ErrUnavailable is returned by Submit once the controller is draining or stopped.
	ErrUnavailable = errors.Unavailable("admission controller is not accepting requests")

	// ErrQueueFull is returned by TrySubmit when the queue is at capacity.
	ErrQueueFull = errors.New(errors.ErrCodeCapacity, "admission queue is full")

	// ErrCanceled is in the chain of every error a future resolves with
	// when its request never ran.
	ErrCanceled = errors.Canceled("admission controller stopped")
)

// IsCanceled reports whether err means the request was canceled before its
// operation ran, as opposed to the operation itself failing.
func IsCanceled(err error) bool {
	return stderrors.Is(err, ErrCanceled)
}

func canceledError(requestID string, cause error) error {
	opts := []errors.Option{
		errors.WithCause(ErrCanceled),
		errors.WithRequestID(requestID),
	}
	if cause != nil {
		opts = append(opts, errors.WithMetadata("reason", cause.Error()))
	}
	return errors.Canceled("request canceled before admission", opts...)
}
