package engine

import (
	"log"
	"sync"
	"time"
)

type EventType int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

type subscription struct {
	id    int
	types map[EventType]bool // nil means every type
	fn    func(Event)
}

// EventBus fans events out to subscribers synchronously, in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers fn for every event and returns an id for Unsubscribe.
func (b *EventBus) Subscribe(fn func(Event)) int {
	return b.add(nil, fn)
}

// SubscribeTypes registers fn for the listed event types only.
func (b *EventBus) SubscribeTypes(fn func(Event), types ...EventType) int {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return b.add(set, fn)
}

func (b *EventBus) add(types map[EventType]bool, fn func(Event)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, types: types, fn: fn})
	return b.nextID
}

func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers evt to every matching subscriber. A panicking handler is
// logged and does not stop delivery to the others.
func (b *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.types != nil && !s.types[evt.Type] {
			continue
		}
		b.deliver(s, evt)
	}
}

func (b *EventBus) deliver(s subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: event handler for %s panicked: %v", evt.Type, r)
		}
	}()
	s.fn(evt)
}
