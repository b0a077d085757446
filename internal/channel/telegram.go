package channel

import (
	"context"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Telegram is the bot-token channel, backed by Bot API long polling.
type Telegram struct {
	mu        sync.Mutex
	bot       *tgbotapi.BotAPI
	onMessage func(Message)
	done      chan struct{}
	log       zerolog.Logger
}

func NewTelegram(log zerolog.Logger) *Telegram {
	return &Telegram{log: log.With().Str("channel", string(TypeTelegram)).Logger()}
}

func (t *Telegram) Capabilities() Capabilities {
	return CapabilitiesFor(TypeTelegram)
}

func (t *Telegram) OnMessage(fn func(Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

func (t *Telegram) Connect(ctx context.Context, cfg Config) error {
	if cfg.Token == "" {
		return &ConnectError{ChannelType: TypeTelegram, Reason: "bot token is required"}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return &ConnectError{ChannelType: TypeTelegram, Reason: "invalid bot token or network unreachable", Err: err}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.mu.Lock()
	t.bot = bot
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go t.poll(updates, done)

	t.log.Info().Str("bot", bot.Self.UserName).Msg("telegram bot connected")
	return nil
}

func (t *Telegram) Disconnect() error {
	t.mu.Lock()
	bot := t.bot
	done := t.done
	t.bot = nil
	t.done = nil
	t.mu.Unlock()

	if bot == nil {
		return nil
	}
	bot.StopReceivingUpdates()
	close(done)
	return nil
}

func (t *Telegram) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bot != nil
}

func (t *Telegram) SendMessage(ctx context.Context, peerID, content string, opts SendOptions) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()

	if bot == nil {
		return &DeliveryError{ChannelType: TypeTelegram, Reason: "channel not connected"}
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(peerID), 10, 64)
	if err != nil {
		return &DeliveryError{ChannelType: TypeTelegram, Reason: "invalid peer id", Err: err}
	}

	msg := tgbotapi.NewMessage(chatID, content)
	if opts.ReplyTo != "" {
		if replyID, err := strconv.Atoi(opts.ReplyTo); err == nil {
			msg.ReplyToMessageID = replyID
		}
	}

	if _, err := bot.Send(msg); err != nil {
		return &DeliveryError{ChannelType: TypeTelegram, Reason: "network rejected message", Err: err}
	}
	return nil
}

func (t *Telegram) poll(updates tgbotapi.UpdatesChannel, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg, ok := normalizeTelegramUpdate(update)
			if !ok {
				continue
			}
			t.mu.Lock()
			fn := t.onMessage
			t.mu.Unlock()
			if fn != nil {
				fn(msg)
			}
		}
	}
}

func normalizeTelegramUpdate(update tgbotapi.Update) (Message, bool) {
	if update.Message == nil || update.Message.Text == "" {
		return Message{}, false
	}

	m := update.Message
	msg := Message{
		ID:             strconv.Itoa(m.MessageID),
		ChannelType:    TypeTelegram,
		ConversationID: strconv.FormatInt(m.Chat.ID, 10),
		Text:           m.Text,
		Timestamp:      m.Time(),
	}
	if m.From != nil {
		msg.SenderID = strconv.FormatInt(m.From.ID, 10)
		msg.SenderName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		if msg.SenderName == "" {
			msg.SenderName = m.From.UserName
		}
	}
	if m.ReplyToMessage != nil {
		msg.ReplyTo = strconv.Itoa(m.ReplyToMessage.MessageID)
	}
	return msg, true
}
