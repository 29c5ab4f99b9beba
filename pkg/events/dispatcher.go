package events

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

type EventType string

const (
	EventWorldPreLoad   EventType = "world.pre_load"
	EventWorldLoad      EventType = "world.load"
	EventWorldPreUnload EventType = "world.pre_unload"
	EventWorldUnload    EventType = "world.unload"
	EventWorldCreate    EventType = "world.create"
	EventWorldImport    EventType = "world.import"
	EventWorldDelete    EventType = "world.delete"
	EventWorldUnimport  EventType = "world.unimport"
	EventWorldRename    EventType = "world.rename"
	EventWorldStatus    EventType = "world.status"
)

func (e EventType) IsCancellable() bool {
	return e == EventWorldPreLoad || e == EventWorldPreUnload
}

type Priority int

const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityMonitor
)

// Event describes a change of a world. Post events are fired after the change
// has been committed; pre events may be cancelled by any listener.
type Event struct {
	Type  EventType
	World *world.BuildWorld
	// OldName is set for rename events.
	OldName string
	// OldStatus is set for status events.
	OldStatus world.Status

	cancelled bool
}

func (e *Event) Cancel() {
	if e.Type.IsCancellable() {
		e.cancelled = true
	}
}

func (e *Event) Cancelled() bool { return e.cancelled }

type Handler func(e *Event) error

type Subscription struct {
	Owner           string
	Priority        Priority
	Handler         Handler
	IgnoreCancelled bool
}

// Dispatcher delivers world events synchronously on the calling goroutine,
// lowest priority first.
type Dispatcher struct {
	mu            sync.RWMutex
	subscriptions map[EventType][]Subscription
	logger        *zap.Logger
	eventCount    map[EventType]uint64
	cancelCount   map[EventType]uint64
	dispatchTimes map[EventType]time.Duration
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		subscriptions: make(map[EventType][]Subscription),
		logger:        logger.Named("event-dispatcher"),
		eventCount:    make(map[EventType]uint64),
		cancelCount:   make(map[EventType]uint64),
		dispatchTimes: make(map[EventType]time.Duration),
	}
}

func (d *Dispatcher) Subscribe(event EventType, sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.subscriptions[event] = append(d.subscriptions[event], sub)
	slices.SortStableFunc(d.subscriptions[event], func(a, b Subscription) int {
		return int(a.Priority - b.Priority)
	})
}

// On subscribes fn at normal priority.
func (d *Dispatcher) On(event EventType, owner string, fn func(e *Event)) {
	d.Subscribe(event, Subscription{
		Owner:    owner,
		Priority: PriorityNormal,
		Handler: func(e *Event) error {
			fn(e)
			return nil
		},
	})
}

func (d *Dispatcher) Unsubscribe(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for event, subs := range d.subscriptions {
		d.subscriptions[event] = slices.DeleteFunc(subs, func(s Subscription) bool {
			return s.Owner == owner
		})
	}
}

type DispatchResult struct {
	Cancelled bool
	Handlers  int
	Duration  time.Duration
	Errors    []error
}

func (d *Dispatcher) Dispatch(e *Event) *DispatchResult {
	d.mu.RLock()
	subs := slices.Clone(d.subscriptions[e.Type])
	d.mu.RUnlock()

	result := &DispatchResult{}
	if len(subs) == 0 {
		return result
	}

	start := time.Now()
	for _, sub := range subs {
		if e.cancelled && sub.IgnoreCancelled {
			continue
		}
		if err := d.call(sub, e); err != nil {
			result.Errors = append(result.Errors, err)
			d.logger.Error("event handler error",
				zap.String("owner", sub.Owner),
				zap.String("event", string(e.Type)),
				zap.Error(err),
			)
			continue
		}
		result.Handlers++
	}
	result.Cancelled = e.cancelled
	result.Duration = time.Since(start)

	d.mu.Lock()
	d.eventCount[e.Type]++
	if result.Cancelled {
		d.cancelCount[e.Type]++
	}
	d.dispatchTimes[e.Type] += result.Duration
	d.mu.Unlock()

	return result
}

// call keeps a panicking listener from taking down the scheduler goroutine.
func (d *Dispatcher) call(sub Subscription, e *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.Handler(e)
}

// Fire dispatches a post event for w.
func (d *Dispatcher) Fire(t EventType, w *world.BuildWorld) {
	d.Dispatch(&Event{Type: t, World: w})
}

// Allow dispatches a cancellable pre event for w and reports whether no
// listener cancelled it.
func (d *Dispatcher) Allow(t EventType, w *world.BuildWorld) bool {
	return !d.Dispatch(&Event{Type: t, World: w}).Cancelled
}

func (d *Dispatcher) HasSubscribers(event EventType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscriptions[event]) > 0
}

func (d *Dispatcher) SubscriberCount(event EventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscriptions[event])
}

type EventMetrics struct {
	EventType     EventType
	TotalCount    uint64
	CancelCount   uint64
	TotalDuration time.Duration
}

func (d *Dispatcher) Metrics(event EventType) EventMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return EventMetrics{
		EventType:     event,
		TotalCount:    d.eventCount[event],
		CancelCount:   d.cancelCount[event],
		TotalDuration: d.dispatchTimes[event],
	}
}

func (d *Dispatcher) ResetMetrics() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.eventCount)
	clear(d.cancelCount)
	clear(d.dispatchTimes)
}
