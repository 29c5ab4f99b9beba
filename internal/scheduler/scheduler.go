// Package scheduler runs game-state mutations on one goroutine, in the
// manner of a server main thread.
package scheduler

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Scheduler interface {
	Now() time.Time
	// Run queues fn for the next pass of the scheduler.
	Run(fn func())
	RunLater(delay time.Duration, fn func()) Task
	RunTimer(delay, period time.Duration, fn func()) Task
}

type Task interface {
	Cancel()
	Cancelled() bool
}

type task struct {
	due       time.Time
	period    time.Duration
	seq       uint64
	fn        func()
	cancelled atomic.Bool
}

func (t *task) Cancel()         { t.cancelled.Store(true) }
func (t *task) Cancelled() bool { return t.cancelled.Load() }

// queue orders tasks by due time, then by submission order.
type queue struct {
	mu    sync.Mutex
	tasks []*task
	seq   uint64
}

func (q *queue) push(due time.Time, period time.Duration, fn func()) *task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	t := &task{due: due, period: period, seq: q.seq, fn: fn}
	q.insert(t)
	return t
}

func (q *queue) insert(t *task) {
	i, _ := slices.BinarySearchFunc(q.tasks, t, func(a, b *task) int {
		if c := a.due.Compare(b.due); c != 0 {
			return c
		}
		return int(a.seq) - int(b.seq)
	})
	q.tasks = slices.Insert(q.tasks, i, t)
}

// next pops the earliest task due at or before now, returning the time it
// was due. Repeating tasks are queued again for their next period.
func (q *queue) next(now time.Time) (func(), time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) > 0 {
		t := q.tasks[0]
		if t.due.After(now) {
			return nil, time.Time{}, false
		}
		q.tasks = q.tasks[1:]
		if t.Cancelled() {
			continue
		}
		due := t.due
		if t.period > 0 {
			q.seq++
			t.due = t.due.Add(t.period)
			t.seq = q.seq
			q.insert(t)
		}
		return t.fn, due, true
	}
	return nil, time.Time{}, false
}

func (q *queue) runDue(now time.Time) int {
	var n int
	for {
		fn, _, ok := q.next(now)
		if !ok {
			return n
		}
		fn()
		n++
	}
}

func (q *queue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int
	for _, t := range q.tasks {
		if !t.Cancelled() {
			n++
		}
	}
	return n
}

func (q *queue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		t.Cancel()
	}
	q.tasks = nil
}
