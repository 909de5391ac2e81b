package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultBufferSize is the per-subscriber channel capacity
const DefaultBufferSize = 100

// Subscription is one subscriber's view of the bus.
// Events arrive on C; when the buffer is full new events are dropped, never blocking publishers.
type Subscription struct {
	C       <-chan *Event
	ch      chan *Event
	types   map[EventType]bool
	id      uint64
	dropped atomic.Uint64
}

// Dropped returns how many events were discarded because the subscriber lagged
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(t EventType) bool {
	return s.types == nil || s.types[t]
}

// Bus fans events out to subscribers
type Bus struct {
	subs       map[uint64]*Subscription
	log        zerolog.Logger
	bufferSize int
	nextID     uint64
	mu         sync.RWMutex
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: DefaultBufferSize,
		log:        log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a subscriber for the given event types (all types when none given)
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	ch := make(chan *Event, b.bufferSize)
	sub := &Subscription{C: ch, ch: ch}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call twice.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish delivers event to every interested subscriber without blocking
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			b.log.Warn().
				Str("event_type", string(event.Type)).
				Uint64("subscriber", sub.id).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
