package channel

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTelegramUpdate(t *testing.T) {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 42,
			Text:      "hello there",
			Chat:      &tgbotapi.Chat{ID: 123456},
			From:      &tgbotapi.User{ID: 789, FirstName: "Dana", LastName: "Levi"},
			Date:      1700000000,
		},
	}

	msg, ok := normalizeTelegramUpdate(update)
	require.True(t, ok)
	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, TypeTelegram, msg.ChannelType)
	assert.Equal(t, "123456", msg.ConversationID)
	assert.Equal(t, "789", msg.SenderID)
	assert.Equal(t, "Dana Levi", msg.SenderName)
	assert.Equal(t, "hello there", msg.Text)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNormalizeTelegramUpdate_UsernameFallback(t *testing.T) {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			Text:      "hi",
			Chat:      &tgbotapi.Chat{ID: 1},
			From:      &tgbotapi.User{ID: 2, UserName: "dana_l"},
		},
	}

	msg, ok := normalizeTelegramUpdate(update)
	require.True(t, ok)
	assert.Equal(t, "dana_l", msg.SenderName)
}

func TestNormalizeTelegramUpdate_SkipsNonText(t *testing.T) {
	_, ok := normalizeTelegramUpdate(tgbotapi.Update{})
	assert.False(t, ok)

	_, ok = normalizeTelegramUpdate(tgbotapi.Update{
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 1}},
	})
	assert.False(t, ok)
}

func TestNormalizeTelegramUpdate_ReplyReference(t *testing.T) {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID:      10,
			Text:           "replying",
			Chat:           &tgbotapi.Chat{ID: 1},
			ReplyToMessage: &tgbotapi.Message{MessageID: 9},
		},
	}

	msg, ok := normalizeTelegramUpdate(update)
	require.True(t, ok)
	assert.Equal(t, "9", msg.ReplyTo)
}
