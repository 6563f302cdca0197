package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_SubscribeTypesFilters(t *testing.T) {
	bus := NewEventBus()
	var all, lines []EventType
	bus.Subscribe(func(e Event) { all = append(all, e.Type) })
	bus.SubscribeTypes(func(e Event) { lines = append(lines, e.Type) }, EventLineStarted, EventLineFinished)

	bus.Emit(Event{Type: EventJobImported})
	bus.Emit(Event{Type: EventLineStarted})
	bus.Emit(Event{Type: EventLinePaused})
	bus.Emit(Event{Type: EventLineFinished})

	assert.Equal(t, []EventType{EventJobImported, EventLineStarted, EventLinePaused, EventLineFinished}, all)
	assert.Equal(t, []EventType{EventLineStarted, EventLineFinished}, lines)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	n := 0
	id := bus.Subscribe(func(Event) { n++ })
	bus.Emit(Event{Type: EventJobCompleted})
	bus.Unsubscribe(id)
	bus.Emit(Event{Type: EventJobCompleted})
	assert.Equal(t, 1, n)
}

func TestEventBus_PanicDoesNotStopDelivery(t *testing.T) {
	bus := NewEventBus()
	delivered := false
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Emit(Event{Type: EventStockCredited}) })
	assert.True(t, delivered)
}

func TestEventBus_StampsTimestamp(t *testing.T) {
	bus := NewEventBus()
	var got Event
	bus.Subscribe(func(e Event) { got = e })
	bus.Emit(Event{Type: EventJobImported})
	assert.False(t, got.Timestamp.IsZero())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "line-paused", EventLinePaused.String())
	assert.Equal(t, "unknown", EventType(999).String())
}
