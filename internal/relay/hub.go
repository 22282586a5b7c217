package relay

import (
	"log/slog"
	"sync"

	"sidekick-relay/internal/metrics"
	"sidekick-relay/internal/models"
)

// DefaultSubscriberBuffer is the per-subscriber event queue length.
const DefaultSubscriberBuffer = 256

// Subscription receives every event published after it was created.
type Subscription struct {
	id     uint64
	events chan models.StreamEvent
	hub    *Hub
}

// Events returns the subscription's channel. It is closed when the
// subscription is closed or dropped by the hub.
func (s *Subscription) Events() <-chan models.StreamEvent {
	return s.events
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
}

// Hub fans events out to subscribers. Publishing never blocks: a subscriber
// whose queue is full is considered unreachable and is dropped.
type Hub struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*Subscription
	buffer  int
	metrics *metrics.Relay
}

// NewHub constructs a hub. A non-positive buffer selects DefaultSubscriberBuffer.
func NewHub(buffer int, m *metrics.Relay) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:    make(map[uint64]*Subscription),
		buffer:  buffer,
		metrics: m,
	}
}

// Subscribe attaches a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		events: make(chan models.StreamEvent, h.buffer),
		hub:    h,
	}
	h.subs[sub.id] = sub
	h.metrics.SetSubscribers(len(h.subs))
	return sub
}

// Publish delivers ev to every subscriber.
func (h *Hub) Publish(ev models.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		select {
		case sub.events <- ev:
		default:
			slog.Warn("dropping slow event subscriber", "subscriber", id, "session_id", ev.SessionID)
			delete(h.subs, id)
			close(sub.events)
		}
	}
	h.metrics.SetSubscribers(len(h.subs))
}

// Len returns the number of attached subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.events)
	h.metrics.SetSubscribers(len(h.subs))
}
