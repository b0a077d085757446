// Package bus is the in-process pub/sub layer between gateway internals and
// their consumers. Two event classes flow through it: inbound messages
// relayed from a network, and channel status changes.
package bus

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatwire/chatwire/internal/channel"
)

// InboundMessage is published when a network delivers a message for a user.
type InboundMessage struct {
	UserID  int64           `json:"user_id"`
	Message channel.Message `json:"message"`
}

// StatusChange is published on every connection lifecycle transition.
type StatusChange struct {
	UserID      int64        `json:"user_id"`
	ChannelType channel.Type `json:"channel_type"`
	Status      string       `json:"status"`
	QR          string       `json:"qr,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Bus fans events out to registered handlers. Handlers are invoked
// synchronously on the publisher's goroutine and must not block.
type Bus struct {
	mu      sync.RWMutex
	inbound []func(InboundMessage)
	status  []func(StatusChange)
	log     zerolog.Logger
}

func New(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "bus").Logger()}
}

func (b *Bus) OnInbound(fn func(InboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inbound = append(b.inbound, fn)
}

func (b *Bus) OnStatus(fn func(StatusChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = append(b.status, fn)
}

func (b *Bus) PublishInbound(evt InboundMessage) {
	b.mu.RLock()
	handlers := b.inbound
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(evt)
	}
}

func (b *Bus) PublishStatus(evt StatusChange) {
	b.mu.RLock()
	handlers := b.status
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(evt)
	}
}
