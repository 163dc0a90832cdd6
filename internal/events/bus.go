package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler receives published events. Delivery is synchronous on the
// publisher's goroutine; handlers must be fast and must not call back into
// the publisher's exclusion scope. Feeds that do real work should hand the
// event off to their own channel.
type Handler func(Event)

// Bus is an in-process publish/subscribe fan-out. At-least-once, no
// persistence, no replay: subscribers present at publish time get the event,
// nobody else does.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[int]Handler)}
}

// Subscribe registers h for the given topics and returns a cancel function.
// Subscribe and the returned cancel are safe to call concurrently with
// Publish; they only happen at connection open/close.
func (b *Bus) Subscribe(h Handler, topics ...Topic) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	for _, t := range topics {
		if b.subs[t] == nil {
			b.subs[t] = make(map[int]Handler)
		}
		b.subs[t][id] = h
	}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		for _, t := range topics {
			delete(b.subs[t], id)
		}
		b.mu.Unlock()
	}
}

// Publish fans ev out to all current subscribers of its topic.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Topic]))
	for _, h := range b.subs[ev.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}

	log.Debug().
		Str("topic", string(ev.Topic)).
		Str("match_id", ev.Match.ID.String()).
		Int("subscribers", len(handlers)).
		Msg("event published")
}
