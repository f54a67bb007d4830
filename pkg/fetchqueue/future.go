package fetchqueue

import "context"

// Future is the handle returned by Enqueue. It resolves exactly once, either
// with the fetched value or with the executor's error. Multiple callers may
// wait on the same Future; this is how deduplicated requests observe a single
// execution.
type Future[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

func resolvedFuture[V any](value V) *Future[V] {
	f := newFuture[V]()
	f.resolve(value)
	return f
}

// resolve and reject must each be called at most once, by the single
// goroutine that owns the task's completion.
func (f *Future[V]) resolve(value V) {
	f.value = value
	close(f.done)
}

func (f *Future[V]) reject(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the future resolves or the context is cancelled.
// Cancelling the wait does not abort the underlying fetch; a later Wait on
// the same Future still observes its result.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed when the future resolves.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}
