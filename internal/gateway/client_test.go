package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/router"
)

func TestClient_SendCarriesSecretAndPayload(t *testing.T) {
	var gotSecret string
	var gotPayload sendPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/internal/gateway/send", r.URL.Path)
		gotSecret = r.Header.Get(SecretHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s3cret", zerolog.Nop())
	err := c.Send(context.Background(), 42, router.SendRequest{
		ChannelType: channel.TypeWhatsApp,
		Mode:        channel.ModePersonal,
		PeerID:      "1234@s.whatsapp.net",
		Text:        "Hello",
	})
	require.NoError(t, err)
	require.Equal(t, "s3cret", gotSecret)
	require.Equal(t, int64(42), gotPayload.UserID)
	require.Equal(t, "whatsapp", gotPayload.ChannelType)
	require.Equal(t, "Hello", gotPayload.Text)
}

func TestClient_RejectionIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "channel not connected"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s3cret", zerolog.Nop())
	err := c.Send(context.Background(), 42, router.SendRequest{
		ChannelType: channel.TypeWhatsApp,
		PeerID:      "1234@s.whatsapp.net",
		Text:        "Hello",
	})

	var dErr *channel.DeliveryError
	require.ErrorAs(t, err, &dErr)
	require.Equal(t, "channel not connected", dErr.Reason)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ServerErrorIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s3cret", zerolog.Nop())
	err := c.SyncAutoReply(context.Background(), 42, channel.TypeTelegram, channel.ModeBusiness, true)
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
