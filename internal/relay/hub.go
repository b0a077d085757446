// Package relay fans gateway events out to browser sessions. Each connected
// browser subscribes to exactly one group, scoped to its user; no event is
// ever delivered outside its owning user's group.
package relay

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatwire/chatwire/internal/bus"
)

// EventType tags the two message kinds carried on the browser stream.
type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeStatus  EventType = "status"
)

// Event is one frame on a browser's event stream.
type Event struct {
	Type    EventType   `json:"type"`
	UserID  int64       `json:"user_id"`
	Payload interface{} `json:"payload"`
}

// Hub holds the per-user subscriber groups. It keeps no durable state; a
// browser reconnecting after a drop receives only events emitted after the
// reconnect.
type Hub struct {
	mu     sync.RWMutex
	groups map[int64]map[chan Event]struct{}
	log    zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		groups: make(map[int64]map[chan Event]struct{}),
		log:    log.With().Str("component", "relay").Logger(),
	}
}

// Attach subscribes the hub, once, to the upstream event classes.
func (h *Hub) Attach(b *bus.Bus) {
	b.OnInbound(func(evt bus.InboundMessage) {
		h.Publish(evt.UserID, Event{Type: EventTypeMessage, UserID: evt.UserID, Payload: evt.Message})
	})
	b.OnStatus(func(evt bus.StatusChange) {
		h.Publish(evt.UserID, Event{Type: EventTypeStatus, UserID: evt.UserID, Payload: evt})
	})
}

// Subscribe creates a new channel in the user's group.
func (h *Hub) Subscribe(userID int64) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 16)
	group, ok := h.groups[userID]
	if !ok {
		group = make(map[chan Event]struct{})
		h.groups[userID] = group
	}
	group[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel. Safe to call twice.
func (h *Hub) Unsubscribe(userID int64, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[userID]
	if !ok {
		return
	}
	if _, ok := group[ch]; !ok {
		return
	}
	delete(group, ch)
	close(ch)
	if len(group) == 0 {
		delete(h.groups, userID)
	}
}

// Publish delivers the event to the owning user's group only. Slow
// subscribers are skipped rather than blocking the publisher.
func (h *Hub) Publish(userID int64, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.groups[userID] {
		select {
		case ch <- evt:
		default:
			h.log.Warn().Int64("user_id", userID).Msg("subscriber buffer full, dropping event")
		}
	}
}
