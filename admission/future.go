package admission

import (
	"context"
	"sync"

	"github.com/vinayprograms/admitkit/errors"
)

// ErrPending is returned by Future.Result before the future resolves.
var ErrPending = errors.New(errors.ErrCodeUnavailable, "result not ready")

// Future is the eventual outcome of one submitted request. It resolves
// exactly once, with the operation's result, the operation's error, or a
// cancellation error.
type Future[R any] struct {
	id   string
	once sync.Once
	done chan struct{}
	val  R
	err  error
}

func newFuture[R any](id string) *Future[R] {
	return &Future[R]{id: id, done: make(chan struct{})}
}

// ID returns the request ID the future belongs to.
func (f *Future[R]) ID() string {
	return f.id
}

// Done returns a channel closed once the future resolves.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends. Giving up on the wait
// does not withdraw the request.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future[R]) Result() (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
		var zero R
		return zero, ErrPending
	}
}

// resolve sets the outcome. Only the first call has any effect; it
// reports whether this call was the one that resolved the future.
func (f *Future[R]) resolve(val R, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
		resolved = true
	})
	return resolved
}
