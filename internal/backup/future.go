package backup

import (
	"context"

	"github.com/EinBexiii/dragonfly-buildsystem/internal/scheduler"
)

// Future is the pending result of a backup operation.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Failed returns a future that already failed with err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.complete(*new(T), err)
	return f
}

func (f *Future[T]) complete(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then hands the result to fn on the scheduler goroutine, so fn may touch
// world state.
func (f *Future[T]) Then(s scheduler.Scheduler, fn func(T, error)) {
	go func() {
		<-f.done
		s.Run(func() { fn(f.val, f.err) })
	}()
}
