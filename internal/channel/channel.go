// Package channel defines the unified channel abstraction: every external
// messaging network is adapted to one message model and one Channel
// interface, so the router and relay never special-case a network type.
package channel

import (
	"context"
	"time"
)

// Type identifies which external messaging network a channel targets.
type Type string

const (
	TypeWhatsApp Type = "whatsapp"
	TypeTelegram Type = "telegram"
)

// ParseType validates a channel type coming from an HTTP request.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeWhatsApp, TypeTelegram:
		return Type(s), true
	}
	return "", false
}

// Mode distinguishes integration styles for the same network type,
// e.g. personal-account pairing vs. a business bot token.
type Mode string

const (
	ModePersonal Mode = "personal"
	ModeBusiness Mode = "business"
)

// Capabilities describes what a network supports. The set is fixed per
// network type and never mutated.
type Capabilities struct {
	Streaming     bool `json:"streaming"`
	Attachments   bool `json:"attachments"`
	Reactions     bool `json:"reactions"`
	Threads       bool `json:"threads"`
	Editing       bool `json:"editing"`
	MaxMessageLen int  `json:"max_message_len"`
}

var capabilitiesByType = map[Type]Capabilities{
	TypeWhatsApp: {
		Attachments:   true,
		Reactions:     true,
		Editing:       true,
		MaxMessageLen: 65536,
	},
	TypeTelegram: {
		Attachments:   true,
		Reactions:     true,
		Threads:       true,
		Editing:       true,
		MaxMessageLen: 4096,
	},
}

// CapabilitiesFor returns the fixed capability set for a network type.
func CapabilitiesFor(t Type) Capabilities {
	return capabilitiesByType[t]
}

// Attachment is a typed reference to media carried by a message.
type Attachment struct {
	Kind     string `json:"kind"` // image, video, document, audio
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is the normalized envelope produced from any network's native
// payload and consumed uniformly by routing and relaying.
type Message struct {
	ID             string            `json:"id"`
	ChannelType    Type              `json:"channel_type"`
	ConversationID string            `json:"conversation_id"` // channel-scoped
	SenderID       string            `json:"sender_id"`
	SenderName     string            `json:"sender_name,omitempty"`
	Text           string            `json:"text"`
	Attachments    []Attachment      `json:"attachments,omitempty"`
	ReplyTo        string            `json:"reply_to,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SendOptions carries optional delivery parameters.
type SendOptions struct {
	ReplyTo     string
	Attachments []Attachment
}

// Config carries per-network connection settings. Fields not relevant to a
// given network are ignored by its implementation.
type Config struct {
	SessionPath string // credential store location (personal networks)
	Token       string // bot-token networks
	ProxyAddr   string // optional SOCKS5 proxy; empty means direct connection
}

// Channel is implemented by every concrete network integration.
//
// Disconnect is idempotent: calling it on an already-disconnected channel is
// a no-op. OnMessage registers a single inbound callback, invoked at most
// once per inbound unit with a populated Message.
type Channel interface {
	Connect(ctx context.Context, cfg Config) error
	Disconnect() error
	SendMessage(ctx context.Context, peerID, content string, opts SendOptions) error
	IsConnected() bool
	Capabilities() Capabilities
	OnMessage(fn func(Message))
}
