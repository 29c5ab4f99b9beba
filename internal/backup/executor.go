package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrExecutorBusy   = errors.New("backup executor queue is full")
	ErrExecutorClosed = errors.New("backup executor is closed")
)

type job func(ctx context.Context)

// Executor runs backup I/O on a fixed number of worker goroutines fed by a
// bounded queue.
type Executor struct {
	mu     sync.Mutex
	jobs   chan job
	logger *zap.Logger
	size   int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExecutor(workers, queue int, logger *zap.Logger) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		jobs:   make(chan job, queue),
		logger: logger,
		size:   workers,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.work()
	}
	return e
}

func (e *Executor) work() {
	defer e.wg.Done()
	for j := range e.jobs {
		e.run(j)
	}
}

func (e *Executor) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("backup job panicked", zap.Any("panic", r))
		}
	}()
	j(e.ctx)
}

// Submit queues j, failing when the queue is full instead of blocking the
// caller.
func (e *Executor) Submit(j func(ctx context.Context)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}

	select {
	case e.jobs <- j:
		return nil
	default:
		return ErrExecutorBusy
	}
}

func (e *Executor) Size() int                { return e.size }
func (e *Executor) Queued() int              { return len(e.jobs) }
func (e *Executor) Context() context.Context { return e.ctx }

// Close stops accepting work and waits for queued jobs to finish, or for
// ctx to end, after which running jobs see their context cancelled.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return fmt.Errorf("backup executor: %w", ctx.Err())
	}
}

// Go runs fn on the executor and returns its future result.
func Go[T any](e *Executor, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	err := e.Submit(func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("backup job panicked", zap.Any("panic", r))
				f.complete(*new(T), fmt.Errorf("backup job panicked: %v", r))
			}
		}()
		val, err := fn(ctx)
		f.complete(val, err)
	})
	if err != nil {
		return Failed[T](err)
	}
	return f
}
