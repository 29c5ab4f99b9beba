package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

func TestDispatchOrdersByPriority(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	var order []string
	add := func(name string, p Priority) {
		d.Subscribe(EventWorldLoad, Subscription{Owner: name, Priority: p, Handler: func(*Event) error {
			order = append(order, name)
			return nil
		}})
	}
	add("monitor", PriorityMonitor)
	add("low", PriorityLow)
	add("normal", PriorityNormal)

	res := d.Dispatch(&Event{Type: EventWorldLoad})

	assert.Equal(t, []string{"low", "normal", "monitor"}, order)
	assert.Equal(t, 3, res.Handlers)
	assert.False(t, res.Cancelled)
}

func TestPreEventCancellation(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.On(EventWorldPreUnload, "guard", func(e *Event) { e.Cancel() })
	skipped := true
	d.Subscribe(EventWorldPreUnload, Subscription{
		Owner:           "late",
		Priority:        PriorityHigh,
		IgnoreCancelled: true,
		Handler: func(*Event) error {
			skipped = false
			return nil
		},
	})

	assert.False(t, d.Allow(EventWorldPreUnload, nil))
	assert.True(t, skipped)
	assert.Equal(t, uint64(1), d.Metrics(EventWorldPreUnload).CancelCount)
}

func TestPostEventsCannotBeCancelled(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.On(EventWorldUnload, "guard", func(e *Event) { e.Cancel() })

	res := d.Dispatch(&Event{Type: EventWorldUnload})
	assert.False(t, res.Cancelled)
}

func TestHandlerErrorsAndPanicsAreCollected(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.Subscribe(EventWorldCreate, Subscription{Owner: "err", Handler: func(*Event) error { return errors.New("boom") }})
	d.Subscribe(EventWorldCreate, Subscription{Owner: "panic", Handler: func(*Event) error { panic("bad listener") }})
	var seen *world.BuildWorld
	w := &world.BuildWorld{}
	d.On(EventWorldCreate, "ok", func(e *Event) { seen = e.World })

	res := d.Dispatch(&Event{Type: EventWorldCreate, World: w})

	assert.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Handlers)
	assert.Same(t, w, seen)
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.On(EventWorldLoad, "a", func(*Event) {})
	d.On(EventWorldUnload, "a", func(*Event) {})
	d.On(EventWorldLoad, "b", func(*Event) {})

	d.Unsubscribe("a")

	assert.Equal(t, 1, d.SubscriberCount(EventWorldLoad))
	assert.False(t, d.HasSubscribers(EventWorldUnload))
}

func TestResetMetrics(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.On(EventWorldLoad, "a", func(*Event) {})
	d.Fire(EventWorldLoad, nil)
	assert.Equal(t, uint64(1), d.Metrics(EventWorldLoad).TotalCount)

	d.ResetMetrics()
	assert.Zero(t, d.Metrics(EventWorldLoad).TotalCount)
}
