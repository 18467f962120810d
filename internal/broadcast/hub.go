// Package broadcast fans committed feed changes out to live subscribers.
//
// Delivery is at-most-once and best-effort: events are not persisted or replayed,
// a subscriber only sees events published while it is registered, and a subscriber
// whose buffer is full is dropped rather than allowed to stall the publisher.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/anonto42/nano-feed/backend/internal/models"
	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 16

// Action names the kind of change an Event reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is a committed change to one post.
type Event struct {
	Action Action              `json:"action"`
	Post   models.PostSnapshot `json:"post"`
}

// Hub is a registry of live subscribers. The zero value is not usable; use NewHub.
type Hub struct {
	mu         sync.Mutex
	subs       map[string]*Subscription
	bufferSize int
	closed     bool
	published  atomic.Uint64
	dropped    atomic.Uint64
	log        *slog.Logger
}

// Subscription is one registered listener.
type Subscription struct {
	id     string
	events chan Event
	hub    *Hub
}

func NewHub(bufferSize int, log *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = slog.Default()
	}

	return &Hub{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
		log:        log,
	}
}

// Subscribe registers a new listener. On a closed hub the returned subscription's
// channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		events: make(chan Event, h.bufferSize),
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.events)
		return sub
	}
	h.subs[sub.id] = sub

	return sub
}

// Publish delivers the event to every subscriber registered at call time.
// It never blocks: a subscriber with a full buffer is removed and its channel closed.
// Publishes are serialized, so all subscribers observe the same relative order.
func (h *Hub) Publish(ctx context.Context, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.published.Add(1)

	for id, sub := range h.subs {
		select {
		case sub.events <- event:
		default:
			delete(h.subs, id)
			close(sub.events)
			h.dropped.Add(1)

			h.log.WarnContext(ctx, "Subscriber dropped on full buffer",
				"subscriberID", id,
				"bufferSize", h.bufferSize,
				"action", event.Action,
				"postID", event.Post.ID)
		}
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Published reports how many events have been published.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// Dropped reports how many subscribers were removed for falling behind.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close unregisters every subscriber and closes their channels. Later publishes are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.events)
	}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.events)
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string {
	return s.id
}

// Events is closed when the subscription ends, whether by Close, by being dropped, or by hub shutdown.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.id)
}
