package events

import (
	"log/slog"
	"sync"

	"github.com/terra-clan/psv-academy/internal/models"
)

// subscriberBuffer bounds per-subscriber backlog; slow readers lose events rather than stall publishers
const subscriberBuffer = 32

type subscriber struct {
	profileID string
	ch        chan models.Event
}

// Hub fans progression events out to live subscribers
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe registers a listener. An empty profileID receives every event.
// The returned cancel func must be called to release the subscription.
func (h *Hub) Subscribe(profileID string) (<-chan models.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{profileID: profileID, ch: ch}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to matching subscribers without blocking
func (h *Hub) Publish(e models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if s.profileID != "" && s.profileID != e.ProfileID {
			continue
		}
		select {
		case s.ch <- e:
		default:
			slog.Warn("dropping event for slow subscriber", "type", e.Type, "profile_id", e.ProfileID)
		}
	}
}

// Subscribers returns the number of active subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
	h.closed = true
}
