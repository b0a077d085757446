// Package router moves outbound messages to the channel that can deliver
// them and records the durable trail for every message that actually moved.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatwire/chatwire/internal/bus"
	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/database"
)

// SendRequest is a validated outbound send.
type SendRequest struct {
	ChannelType channel.Type
	Mode        channel.Mode
	PeerID      string
	Text        string
}

// SendResult reports what was written after a successful delivery.
type SendResult struct {
	MessageID      string `json:"message_id"`
	ConversationID int64  `json:"conversation_id"`
}

// AutoReplyResult reports the flag state plus whether the owning process
// acknowledged the change.
type AutoReplyResult struct {
	AutoReply   bool `json:"auto_reply"`
	GatewaySync bool `json:"gateway_sync"`
}

// ValidationError marks a request the caller got wrong; handlers map it to a
// 400 rather than a 5xx.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// GatewayCaller forwards operations to the process that owns the live
// connection when this process does not.
type GatewayCaller interface {
	Send(ctx context.Context, userID int64, req SendRequest) error
	SyncAutoReply(ctx context.Context, userID int64, channelType channel.Type, mode channel.Mode, enabled bool) error
}

type Router struct {
	db       *database.DB
	channels *channel.Registry
	gateway  GatewayCaller // nil when this process has no peer
	bus      *bus.Bus
	log      zerolog.Logger
}

func New(db *database.DB, channels *channel.Registry, gateway GatewayCaller, b *bus.Bus, log zerolog.Logger) *Router {
	return &Router{
		db:       db,
		channels: channels,
		gateway:  gateway,
		bus:      b,
		log:      log.With().Str("component", "router").Logger(),
	}
}

func validate(req *SendRequest) error {
	req.PeerID = strings.TrimSpace(req.PeerID)
	if req.PeerID == "" {
		return &ValidationError{Reason: "peer_id is required"}
	}
	if strings.TrimSpace(req.Text) == "" {
		return &ValidationError{Reason: "text must not be blank"}
	}
	if _, ok := channel.ParseType(string(req.ChannelType)); !ok {
		return &ValidationError{Reason: fmt.Sprintf("unknown channel type %q", req.ChannelType)}
	}
	if req.Mode == "" {
		req.Mode = channel.ModePersonal
	}
	return nil
}

// Send delivers the message and then records it. Nothing durable is written
// when delivery fails, so the stored history only ever contains messages the
// network accepted.
func (r *Router) Send(ctx context.Context, userID int64, req SendRequest) (*SendResult, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	if err := r.deliver(ctx, userID, req, true); err != nil {
		return nil, err
	}

	conv, err := r.db.UpsertConversation(userID, string(req.ChannelType), req.PeerID, "")
	if err != nil {
		return nil, fmt.Errorf("message delivered but conversation not recorded: %w", err)
	}

	msg := &database.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        req.Text,
		Direction:      "outbound",
		ChannelType:    string(req.ChannelType),
		ChannelPeer:    req.PeerID,
	}
	if err := r.db.InsertMessage(msg); err != nil {
		return nil, fmt.Errorf("message delivered but not recorded: %w", err)
	}

	if err := r.db.UpsertContact(userID, string(req.ChannelType), req.PeerID, "", time.Now().UTC()); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to update contact recency")
	}

	return &SendResult{MessageID: msg.ID, ConversationID: conv.ID}, nil
}

// DeliverLocal delivers through a channel this process owns, never
// forwarding. The internal gateway endpoint uses it to stop forwarding
// loops between peer processes.
func (r *Router) DeliverLocal(ctx context.Context, userID int64, req SendRequest) error {
	if err := validate(&req); err != nil {
		return err
	}
	return r.deliver(ctx, userID, req, false)
}

func (r *Router) deliver(ctx context.Context, userID int64, req SendRequest, allowForward bool) error {
	if ch, ok := r.channels.Get(userID, req.ChannelType, req.Mode); ok {
		if !ch.IsConnected() {
			return &channel.DeliveryError{ChannelType: req.ChannelType, Reason: "channel not connected"}
		}
		return ch.SendMessage(ctx, req.PeerID, req.Text, channel.SendOptions{})
	}

	if allowForward && r.gateway != nil {
		return r.gateway.Send(ctx, userID, req)
	}

	return &channel.DeliveryError{ChannelType: req.ChannelType, Reason: "no connected channel for user"}
}

// SetAutoReply persists the flag first; the flag is the durable truth even
// when the owning process cannot be reached right now.
func (r *Router) SetAutoReply(ctx context.Context, userID int64, channelType channel.Type, mode channel.Mode, enabled bool) (*AutoReplyResult, error) {
	if _, ok := channel.ParseType(string(channelType)); !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown channel type %q", channelType)}
	}
	if mode == "" {
		mode = channel.ModePersonal
	}

	if err := r.db.SetAutoReply(userID, string(channelType), string(mode), enabled); err != nil {
		return nil, err
	}

	result := &AutoReplyResult{AutoReply: enabled}

	if _, ok := r.channels.Get(userID, channelType, mode); ok {
		// This process owns the live connection; nothing to sync.
		result.GatewaySync = true
		return result, nil
	}

	if r.gateway != nil {
		if err := r.gateway.SyncAutoReply(ctx, userID, channelType, mode, enabled); err != nil {
			// The flag is already persisted; the peer picks it up on its
			// next read.
			r.log.Warn().Err(err).Int64("user_id", userID).Msg("auto-reply sync to gateway peer failed")
			return result, nil
		}
		result.GatewaySync = true
	}

	return result, nil
}

// RecordInbound stores a message a network delivered to us and publishes it
// for live subscribers.
func (r *Router) RecordInbound(ctx context.Context, userID int64, msg channel.Message) error {
	conv, err := r.db.UpsertConversation(userID, string(msg.ChannelType), msg.ConversationID, msg.SenderName)
	if err != nil {
		return fmt.Errorf("failed to record inbound conversation: %w", err)
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	stored := &database.Message{
		ID:             id,
		ConversationID: conv.ID,
		Role:           "user",
		Content:        msg.Text,
		Direction:      "inbound",
		ChannelType:    string(msg.ChannelType),
		ChannelPeer:    msg.ConversationID,
	}
	if err := r.db.InsertMessage(stored); err != nil {
		return fmt.Errorf("failed to record inbound message: %w", err)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if err := r.db.UpsertContact(userID, string(msg.ChannelType), msg.ConversationID, msg.SenderName, ts); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to update contact")
	}

	r.bus.PublishInbound(bus.InboundMessage{UserID: userID, Message: msg})
	return nil
}
