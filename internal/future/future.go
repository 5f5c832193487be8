// Package future provides a one-shot, write-once result handle that any
// number of goroutines can wait on.
package future

import (
	"context"
	"sync"
)

// Future represents a computation in progress that will later resolve to a
// value or an error.
//
// Concurrency notes:
//   - Resolve publishes (val, err) and then closes done, so reads after
//     <-done observe the final values.
//   - Only the first Resolve takes effect; later calls are ignored.
//   - Cancelling ctx in Await unblocks only that waiter; it does NOT cancel
//     the work producing the value.
type Future[V any] struct {
	once sync.Once
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// New returns an unresolved Future.
func New[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Resolve publishes the result and wakes all waiters.
func (f *Future[V]) Resolve(v V, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Await blocks until the Future resolves or ctx is done. If ctx ends first,
// Await returns ctx.Err() while the underlying work continues.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
