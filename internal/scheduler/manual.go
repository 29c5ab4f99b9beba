package scheduler

import (
	"sync"
	"time"
)

// Manual is a scheduler driven by simulated time. Tasks only run from
// Advance, on the calling goroutine.
type Manual struct {
	q   queue
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Run(fn func()) { m.q.push(m.Now(), 0, fn) }

func (m *Manual) RunLater(delay time.Duration, fn func()) Task {
	return m.q.push(m.Now().Add(delay), 0, fn)
}

func (m *Manual) RunTimer(delay, period time.Duration, fn func()) Task {
	return m.q.push(m.Now().Add(delay), period, fn)
}

// Advance moves the clock forward by d, running every task that becomes due
// at its own due time. It returns the number of tasks executed.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	var n int
	for {
		fn, due, ok := m.q.next(target)
		if !ok {
			break
		}
		m.mu.Lock()
		if due.After(m.now) {
			m.now = due
		}
		m.mu.Unlock()
		fn()
		n++
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
	return n
}

// Flush runs queued work that is already due without moving the clock.
func (m *Manual) Flush() int { return m.q.runDue(m.Now()) }

// Pending counts tasks that are scheduled and not cancelled.
func (m *Manual) Pending() int { return m.q.pending() }
