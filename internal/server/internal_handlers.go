package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/gateway"
	"github.com/chatwire/chatwire/internal/router"
)

// checkGatewaySecret authenticates a process-to-process request. Constant
// time compare; the header value is an opaque shared secret.
func (s *Server) checkGatewaySecret(w http.ResponseWriter, r *http.Request) bool {
	if s.gatewaySecret == "" {
		respondError(w, http.StatusForbidden, "gateway endpoints disabled")
		return false
	}
	got := r.Header.Get(gateway.SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.gatewaySecret)) != 1 {
		respondError(w, http.StatusForbidden, "invalid gateway secret")
		return false
	}
	return true
}

type gatewaySendBody struct {
	UserID         int64  `json:"user_id"`
	ChannelType    string `json:"channel_type"`
	ConnectionMode string `json:"connection_mode"`
	PeerID         string `json:"peer_id"`
	Text           string `json:"text"`
}

// handleGatewaySend delivers through a locally owned channel only. It never
// forwards, so two processes can point at each other without creating a
// forwarding loop.
func (s *Server) handleGatewaySend(w http.ResponseWriter, r *http.Request) {
	if !s.checkGatewaySecret(w, r) {
		return
	}

	var body gatewaySendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.router.DeliverLocal(r.Context(), body.UserID, router.SendRequest{
		ChannelType: channel.Type(body.ChannelType),
		Mode:        channel.Mode(body.ConnectionMode),
		PeerID:      body.PeerID,
		Text:        body.Text,
	})
	if err != nil {
		var vErr *router.ValidationError
		var dErr *channel.DeliveryError
		switch {
		case errors.As(err, &vErr):
			respondError(w, http.StatusBadRequest, vErr.Reason)
		case errors.As(err, &dErr):
			respondError(w, http.StatusBadRequest, dErr.Reason)
		default:
			respondError(w, http.StatusInternalServerError, "delivery failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

type gatewayAutoReplyBody struct {
	UserID         int64  `json:"user_id"`
	ChannelType    string `json:"channel_type"`
	ConnectionMode string `json:"connection_mode"`
	Enabled        bool   `json:"enabled"`
}

// handleGatewayAutoReply acknowledges an auto-reply change made by a peer
// process. The flag is already persisted; this only confirms the record is
// visible here.
func (s *Server) handleGatewayAutoReply(w http.ResponseWriter, r *http.Request) {
	if !s.checkGatewaySecret(w, r) {
		return
	}

	var body gatewayAutoReplyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := body.ConnectionMode
	if mode == "" {
		mode = string(channel.ModePersonal)
	}
	rec, err := s.db.GetUserChannel(body.UserID, body.ChannelType, mode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read channel record")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "channel not configured")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"auto_reply": rec.AutoReply,
	})
}
