package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire/internal/bus"
	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/database"
)

type fakeChannel struct {
	connected bool
	sendErr   error
	sent      []string // peer + "|" + content
}

func (f *fakeChannel) Connect(ctx context.Context, cfg channel.Config) error { return nil }
func (f *fakeChannel) Disconnect() error                                     { return nil }
func (f *fakeChannel) IsConnected() bool                                     { return f.connected }
func (f *fakeChannel) Capabilities() channel.Capabilities                    { return channel.Capabilities{} }
func (f *fakeChannel) OnMessage(fn func(channel.Message))                    {}

func (f *fakeChannel) SendMessage(ctx context.Context, peerID, content string, opts channel.SendOptions) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, peerID+"|"+content)
	return nil
}

type fakeGateway struct {
	sendErr error
	syncErr error
	sends   int
	syncs   int
}

func (f *fakeGateway) Send(ctx context.Context, userID int64, req SendRequest) error {
	f.sends++
	return f.sendErr
}

func (f *fakeGateway) SyncAutoReply(ctx context.Context, userID int64, channelType channel.Type, mode channel.Mode, enabled bool) error {
	f.syncs++
	return f.syncErr
}

func newTestRouter(t *testing.T, gateway GatewayCaller) (*Router, *database.DB, *channel.Registry, *database.User) {
	t.Helper()

	db := database.NewTestDB(t)
	user := database.CreateTestUser(t, db)
	registry := channel.NewRegistry()
	r := New(db, registry, gateway, bus.New(zerolog.Nop()), zerolog.Nop())
	return r, db, registry, user
}

func TestSend_RecordsAfterDelivery(t *testing.T) {
	r, db, registry, user := newTestRouter(t, nil)

	ch := &fakeChannel{connected: true}
	registry.Put(user.ID, channel.TypeWhatsApp, channel.ModePersonal, ch)

	result, err := r.Send(context.Background(), user.ID, SendRequest{
		ChannelType: channel.TypeWhatsApp,
		PeerID:      "1234@s.whatsapp.net",
		Text:        "Hello",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.MessageID)
	require.NotZero(t, result.ConversationID)
	require.Equal(t, []string{"1234@s.whatsapp.net|Hello"}, ch.sent)

	messages, err := db.ListMessages(result.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "assistant", messages[0].Role)
	require.Equal(t, "outbound", messages[0].Direction)
	require.Equal(t, "Hello", messages[0].Content)

	contacts, err := db.ListContacts(user.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, "1234@s.whatsapp.net", contacts[0].PeerID)
}

func TestSend_NothingRecordedOnDeliveryFailure(t *testing.T) {
	r, db, registry, user := newTestRouter(t, nil)

	ch := &fakeChannel{connected: true, sendErr: errors.New("network refused")}
	registry.Put(user.ID, channel.TypeWhatsApp, channel.ModePersonal, ch)

	_, err := r.Send(context.Background(), user.ID, SendRequest{
		ChannelType: channel.TypeWhatsApp,
		PeerID:      "1234@s.whatsapp.net",
		Text:        "Hello",
	})
	require.Error(t, err)

	conversations, err := db.ListConversations(user.ID)
	require.NoError(t, err)
	require.Empty(t, conversations)
}

func TestSend_DisconnectedChannelRejected(t *testing.T) {
	r, _, registry, user := newTestRouter(t, nil)

	registry.Put(user.ID, channel.TypeWhatsApp, channel.ModePersonal, &fakeChannel{connected: false})

	_, err := r.Send(context.Background(), user.ID, SendRequest{
		ChannelType: channel.TypeWhatsApp,
		PeerID:      "1234@s.whatsapp.net",
		Text:        "Hello",
	})
	var dErr *channel.DeliveryError
	require.ErrorAs(t, err, &dErr)
	require.Equal(t, "channel not connected", dErr.Reason)
}

func TestSend_Validation(t *testing.T) {
	r, _, _, user := newTestRouter(t, nil)

	cases := []SendRequest{
		{ChannelType: channel.TypeWhatsApp, PeerID: "", Text: "hi"},
		{ChannelType: channel.TypeWhatsApp, PeerID: "1234", Text: "   "},
		{ChannelType: "carrier-pigeon", PeerID: "1234", Text: "hi"},
	}
	for _, req := range cases {
		_, err := r.Send(context.Background(), user.ID, req)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
	}
}

func TestSend_ForwardsToGatewayWhenNotLocal(t *testing.T) {
	gw := &fakeGateway{}
	r, db, _, user := newTestRouter(t, gw)

	result, err := r.Send(context.Background(), user.ID, SendRequest{
		ChannelType: channel.TypeWhatsApp,
		PeerID:      "1234@s.whatsapp.net",
		Text:        "Hello",
	})
	require.NoError(t, err)
	require.Equal(t, 1, gw.sends)

	// The forwarding process records the message; the owner only delivers.
	messages, err := db.ListMessages(result.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestDeliverLocal_NeverForwards(t *testing.T) {
	gw := &fakeGateway{}
	r, _, _, user := newTestRouter(t, gw)

	err := r.DeliverLocal(context.Background(), user.ID, SendRequest{
		ChannelType: channel.TypeWhatsApp,
		PeerID:      "1234@s.whatsapp.net",
		Text:        "Hello",
	})
	var dErr *channel.DeliveryError
	require.ErrorAs(t, err, &dErr)
	require.Zero(t, gw.sends)
}

func TestSetAutoReply_PersistsBeforeSync(t *testing.T) {
	gw := &fakeGateway{syncErr: errors.New("peer unreachable")}
	r, db, _, user := newTestRouter(t, gw)

	require.NoError(t, db.UpsertUserChannel(user.ID, "whatsapp", "personal"))

	result, err := r.SetAutoReply(context.Background(), user.ID, channel.TypeWhatsApp, channel.ModePersonal, true)
	require.NoError(t, err)
	require.True(t, result.AutoReply)
	require.False(t, result.GatewaySync)
	require.Equal(t, 1, gw.syncs)

	uc, err := db.GetUserChannel(user.ID, "whatsapp", "personal")
	require.NoError(t, err)
	require.True(t, uc.AutoReply)
}

func TestSetAutoReply_LocalChannelNeedsNoSync(t *testing.T) {
	gw := &fakeGateway{}
	r, db, registry, user := newTestRouter(t, gw)

	require.NoError(t, db.UpsertUserChannel(user.ID, "whatsapp", "personal"))
	registry.Put(user.ID, channel.TypeWhatsApp, channel.ModePersonal, &fakeChannel{connected: true})

	result, err := r.SetAutoReply(context.Background(), user.ID, channel.TypeWhatsApp, channel.ModePersonal, true)
	require.NoError(t, err)
	require.True(t, result.GatewaySync)
	require.Zero(t, gw.syncs)
}

func TestRecordInbound(t *testing.T) {
	r, db, _, user := newTestRouter(t, nil)

	var got []bus.InboundMessage
	r.bus.OnInbound(func(evt bus.InboundMessage) { got = append(got, evt) })

	msg := channel.Message{
		ID:             "wamid.123",
		ChannelType:    channel.TypeWhatsApp,
		ConversationID: "1234@s.whatsapp.net",
		SenderID:       "1234@s.whatsapp.net",
		SenderName:     "Dana",
		Text:           "hey",
		Timestamp:      time.Now().UTC(),
	}
	require.NoError(t, r.RecordInbound(context.Background(), user.ID, msg))

	conversations, err := db.ListConversations(user.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	require.Equal(t, "Dana", conversations[0].Title)

	messages, err := db.ListMessages(conversations[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "user", messages[0].Role)
	require.Equal(t, "inbound", messages[0].Direction)

	require.Len(t, got, 1)
	require.Equal(t, user.ID, got[0].UserID)
}
