package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire/internal/auth"
	"github.com/chatwire/chatwire/internal/bus"
	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/database"
	"github.com/chatwire/chatwire/internal/gateway"
	"github.com/chatwire/chatwire/internal/relay"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/session"
)

type staticValidator struct {
	user *auth.User
}

func (v staticValidator) ValidateToken(ctx context.Context, token string) (*auth.User, error) {
	if token != "good-token" {
		return nil, fmt.Errorf("unknown token")
	}
	return v.user, nil
}

type testEnv struct {
	srv      *Server
	db       *database.DB
	registry *channel.Registry
	user     *database.User
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	db := database.NewTestDB(t)
	user := database.CreateTestUser(t, db)

	b := bus.New(zerolog.Nop())
	hub := relay.NewHub(zerolog.Nop())
	hub.Attach(b)

	registry := channel.NewRegistry()
	factory := func(ctx context.Context, cfg channel.Config) (channel.PairingTransport, error) {
		return nil, fmt.Errorf("no transport in tests")
	}
	sessions := session.NewManager(db, b, factory, session.Config{
		SessionBasePath: t.TempDir() + "/whatsapp.db",
	}, zerolog.Nop())

	rt := router.New(db, registry, nil, b, zerolog.Nop())

	srv := New(Config{
		DB:            db,
		Sessions:      sessions,
		Router:        rt,
		Hub:           hub,
		Auth:          auth.NewMiddleware(staticValidator{user: &auth.User{ID: user.ID, Email: user.Email}}),
		GatewaySecret: "s3cret",
		Port:          0,
		Log:           zerolog.Nop(),
	})

	return &testEnv{srv: srv, db: db, registry: registry, user: user}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStatus_RequiresAuth(t *testing.T) {
	env := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/channels/whatsapp/status", nil)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatus_FallsBackToEventLog(t *testing.T) {
	env := newTestServer(t)

	// No live session in this process; another process logged a QR event.
	require.NoError(t, env.db.AppendChannelEvent(env.user.ID, "whatsapp", database.EventKindQR, "data:image/png;base64,abc"))

	rec := env.request(t, http.MethodGet, "/api/channels/whatsapp/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "qr", body["status"])
	require.Equal(t, "data:image/png;base64,abc", body["qr"])
}

func TestStatus_EmptyLogIsDisconnected(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodGet, "/api/channels/whatsapp/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "disconnected", decodeBody(t, rec)["status"])
}

func TestStatus_ErrorEventCarriesPayload(t *testing.T) {
	env := newTestServer(t)

	require.NoError(t, env.db.AppendChannelEvent(env.user.ID, "whatsapp", database.EventKindError, "connection closed (code 428)"))

	rec := env.request(t, http.MethodGet, "/api/channels/whatsapp/status", nil)
	body := decodeBody(t, rec)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "connection closed (code 428)", body["error"])
}

func TestSend_ValidationErrorIs400(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodPost, "/api/channels/whatsapp/send", map[string]string{
		"peer_id": "",
		"text":    "hi",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSend_NoChannelIs502(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodPost, "/api/channels/whatsapp/send", map[string]string{
		"peer_id": "1234@s.whatsapp.net",
		"text":    "hi",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAutoReply_PersistedFlagReturned(t *testing.T) {
	env := newTestServer(t)

	require.NoError(t, env.db.UpsertUserChannel(env.user.ID, "whatsapp", "personal"))
	env.registry.Put(env.user.ID, channel.TypeWhatsApp, channel.ModePersonal, connectedFake{})

	rec := env.request(t, http.MethodPost, "/api/channels/whatsapp/auto-reply", map[string]interface{}{
		"enabled": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["auto_reply"])
	require.Equal(t, true, body["gateway_sync"])
}

func TestListChannels(t *testing.T) {
	env := newTestServer(t)

	require.NoError(t, env.db.UpsertUserChannel(env.user.ID, "whatsapp", "personal"))
	require.NoError(t, env.db.UpsertUserChannel(env.user.ID, "telegram", "business"))

	rec := env.request(t, http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Channels []channelResponse `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Channels, 2)
}

func TestGatewaySend_RejectsBadSecret(t *testing.T) {
	env := newTestServer(t)

	payload, _ := json.Marshal(map[string]interface{}{
		"user_id": env.user.ID, "channel_type": "whatsapp", "peer_id": "1234", "text": "hi",
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/gateway/send", bytes.NewReader(payload))
	req.Header.Set(gateway.SecretHeader, "wrong")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGatewaySend_DeliversLocally(t *testing.T) {
	env := newTestServer(t)

	fake := &recordingFake{}
	env.registry.Put(env.user.ID, channel.TypeWhatsApp, channel.ModePersonal, fake)

	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":      env.user.ID,
		"channel_type": "whatsapp",
		"peer_id":      "1234@s.whatsapp.net",
		"text":         "hi",
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/gateway/send", bytes.NewReader(payload))
	req.Header.Set(gateway.SecretHeader, "s3cret")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, fake.sends)
}

// connectedFake is a minimal connected channel for handler tests.
type connectedFake struct{}

func (connectedFake) Connect(ctx context.Context, cfg channel.Config) error { return nil }
func (connectedFake) Disconnect() error                                     { return nil }
func (connectedFake) IsConnected() bool                                     { return true }
func (connectedFake) Capabilities() channel.Capabilities                    { return channel.Capabilities{} }
func (connectedFake) OnMessage(fn func(channel.Message))                    {}
func (connectedFake) SendMessage(ctx context.Context, peerID, content string, opts channel.SendOptions) error {
	return nil
}

type recordingFake struct {
	connectedFake
	sends int
}

func (r *recordingFake) SendMessage(ctx context.Context, peerID, content string, opts channel.SendOptions) error {
	r.sends++
	return nil
}
