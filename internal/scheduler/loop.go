package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop executes tasks on a single goroutine, ticking at a fixed rate.
type Loop struct {
	q      queue
	tick   time.Duration
	logger *zap.Logger
	wake   chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoop(tickRate int, logger *zap.Logger) *Loop {
	if tickRate <= 0 {
		tickRate = 20
	}
	return &Loop{
		tick:   time.Second / time.Duration(tickRate),
		logger: logger.Named("scheduler"),
		wake:   make(chan struct{}, 1),
	}
}

func (l *Loop) Now() time.Time { return time.Now() }

func (l *Loop) Run(fn func()) {
	l.q.push(time.Now(), 0, fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) RunLater(delay time.Duration, fn func()) Task {
	return l.q.push(time.Now().Add(delay), 0, fn)
}

func (l *Loop) RunTimer(delay, period time.Duration, fn func()) Task {
	return l.q.push(time.Now().Add(delay), period, fn)
}

// Start runs the loop until ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-l.wake:
			}
			l.pass()
		}
	}()
}

func (l *Loop) pass() {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("scheduled task panicked", zap.Any("panic", r))
		}
	}()
	l.q.runDue(time.Now())
}

// Stop halts the loop, waits for the current pass and drops pending tasks.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	l.q.clear()
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Run(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
