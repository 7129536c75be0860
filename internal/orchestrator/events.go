package orchestrator

import (
	"sync"
	"time"

	"github.com/era-ai/era/pkg/types"
)

// Hub fans session events out to named subscribers. Slow subscribers miss
// events rather than block a session.
type Hub struct {
	subscribersMu sync.RWMutex
	subscribers   map[string]chan *types.SessionEvent
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan *types.SessionEvent)}
}

// Subscribe registers id and returns its event channel.
func (h *Hub) Subscribe(id string) <-chan *types.SessionEvent {
	h.subscribersMu.Lock()
	defer h.subscribersMu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		close(ch)
	}
	ch := make(chan *types.SessionEvent, 100)
	h.subscribers[id] = ch
	return ch
}

// Unsubscribe closes and removes the subscription.
func (h *Hub) Unsubscribe(id string) {
	h.subscribersMu.Lock()
	defer h.subscribersMu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish delivers event to every subscriber with room for it.
func (h *Hub) Publish(event *types.SessionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.subscribersMu.RLock()
	defer h.subscribersMu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
