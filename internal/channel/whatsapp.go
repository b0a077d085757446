package channel

import (
	"context"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/net/proxy"
	"google.golang.org/protobuf/proto"
)

// WhatsApp is the personal-network channel. It resumes an already-paired
// device session; establishing a pairing in the first place is the job of
// the pairing transport (see whatsapp_pairing.go).
type WhatsApp struct {
	mu        sync.Mutex
	cli       *whatsmeow.Client
	container *sqlstore.Container
	onMessage func(Message)
	log       zerolog.Logger
}

func NewWhatsApp(log zerolog.Logger) *WhatsApp {
	return &WhatsApp{log: log.With().Str("channel", string(TypeWhatsApp)).Logger()}
}

func (w *WhatsApp) Capabilities() Capabilities {
	return CapabilitiesFor(TypeWhatsApp)
}

func (w *WhatsApp) OnMessage(fn func(Message)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMessage = fn
}

func (w *WhatsApp) Connect(ctx context.Context, cfg Config) error {
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+cfg.SessionPath+"?_foreign_keys=on", waLog.Noop)
	if err != nil {
		return &ConnectError{ChannelType: TypeWhatsApp, Reason: "credential store unavailable", Err: err}
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return &ConnectError{ChannelType: TypeWhatsApp, Reason: "failed to load device", Err: err}
	}
	if device.ID == nil {
		container.Close()
		return &ConnectError{ChannelType: TypeWhatsApp, Reason: "device not paired"}
	}

	cli := whatsmeow.NewClient(device, waLog.Stdout("whatsmeow", "WARN", true))

	if cfg.ProxyAddr != "" {
		dialer, err := proxy.SOCKS5("tcp", cfg.ProxyAddr, nil, proxy.Direct)
		if err != nil {
			container.Close()
			return &ConnectError{ChannelType: TypeWhatsApp, Reason: "proxy unavailable", Err: err}
		}
		cli.SetSOCKSProxy(dialer)
	}

	cli.AddEventHandler(w.handleEvent)

	if err := cli.Connect(); err != nil {
		container.Close()
		return &ConnectError{ChannelType: TypeWhatsApp, Reason: "network unreachable", Err: err}
	}

	w.mu.Lock()
	w.cli = cli
	w.container = container
	w.mu.Unlock()

	return nil
}

func (w *WhatsApp) Disconnect() error {
	w.mu.Lock()
	cli := w.cli
	container := w.container
	w.cli = nil
	w.container = nil
	w.mu.Unlock()

	if cli == nil {
		return nil
	}
	cli.Disconnect()
	if container != nil {
		container.Close()
	}
	return nil
}

func (w *WhatsApp) IsConnected() bool {
	w.mu.Lock()
	cli := w.cli
	w.mu.Unlock()
	return cli != nil && cli.IsConnected() && cli.IsLoggedIn()
}

func (w *WhatsApp) SendMessage(ctx context.Context, peerID, content string, opts SendOptions) error {
	w.mu.Lock()
	cli := w.cli
	w.mu.Unlock()

	if cli == nil || !cli.IsConnected() {
		return &DeliveryError{ChannelType: TypeWhatsApp, Reason: "channel not connected"}
	}

	jid, err := parsePeerJID(peerID)
	if err != nil {
		return &DeliveryError{ChannelType: TypeWhatsApp, Reason: "invalid peer id", Err: err}
	}

	msg := &waE2E.Message{Conversation: proto.String(content)}
	if opts.ReplyTo != "" {
		msg = &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String(content),
				ContextInfo: &waE2E.ContextInfo{
					StanzaID:    proto.String(opts.ReplyTo),
					Participant: proto.String(jid.String()),
				},
			},
		}
	}

	if _, err := cli.SendMessage(ctx, jid, msg); err != nil {
		return &DeliveryError{ChannelType: TypeWhatsApp, Reason: "network rejected message", Err: err}
	}
	return nil
}

func (w *WhatsApp) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Message:
		msg, ok := normalizeWhatsAppMessage(evt)
		if !ok {
			return
		}
		w.mu.Lock()
		fn := w.onMessage
		w.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	}
}

func parsePeerJID(peerID string) (types.JID, error) {
	if strings.ContainsRune(peerID, '@') {
		return types.ParseJID(peerID)
	}
	return types.NewJID(peerID, types.DefaultUserServer), nil
}

func normalizeWhatsAppMessage(evt *events.Message) (Message, bool) {
	text := extractText(evt)
	if text == "" {
		return Message{}, false
	}

	// Direct messages only; group traffic is not part of the inbox model.
	if evt.Info.IsGroup {
		return Message{}, false
	}

	return Message{
		ID:             evt.Info.ID,
		ChannelType:    TypeWhatsApp,
		ConversationID: evt.Info.Chat.String(),
		SenderID:       evt.Info.Sender.String(),
		SenderName:     evt.Info.PushName,
		Text:           text,
		Timestamp:      evt.Info.Timestamp,
	}, true
}

func extractText(msg *events.Message) string {
	m := msg.Message

	if m.GetConversation() != "" {
		return m.GetConversation()
	}

	if ext := m.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}

	if img := m.GetImageMessage(); img != nil && img.GetCaption() != "" {
		return "[Image] " + img.GetCaption()
	}

	if vid := m.GetVideoMessage(); vid != nil && vid.GetCaption() != "" {
		return "[Video] " + vid.GetCaption()
	}

	if doc := m.GetDocumentMessage(); doc != nil {
		return "[Document] " + doc.GetFileName()
	}

	return ""
}
