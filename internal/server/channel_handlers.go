package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/database"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/session"
)

// WhatsApp pairing API

func (s *Server) handleWhatsAppConnect(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	// The pairing attempt outlives this request.
	s.sessions.StartPairing(context.Background(), userID)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"status": "connecting",
	})
}

func (s *Server) handleWhatsAppStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	// A live session in this process is authoritative.
	if snap := s.sessions.Status(userID); snap != nil {
		resp := map[string]interface{}{
			"status": session.ExternalStatus(snap.Status),
		}
		if snap.QR != "" {
			resp["qr"] = snap.QR
		}
		if snap.Error != "" {
			resp["error"] = snap.Error
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}

	// No session here; the durable event log may have been written by the
	// process that owns the connection.
	evt, err := s.db.LatestChannelEvent(userID, string(channel.TypeWhatsApp))
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to read event log")
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "disconnected"})
		return
	}
	if evt == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "disconnected"})
		return
	}

	resp := map[string]interface{}{}
	switch evt.Kind {
	case database.EventKindConnecting:
		resp["status"] = "waiting"
	case database.EventKindQR:
		resp["status"] = "qr"
		resp["qr"] = evt.Payload
	case database.EventKindConnected:
		resp["status"] = "connected"
	case database.EventKindLoggedOut:
		resp["status"] = "logged_out"
	case database.EventKindError:
		resp["status"] = "error"
		if evt.Payload != "" {
			resp["error"] = evt.Payload
		}
	default:
		resp["status"] = "disconnected"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWhatsAppDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := s.sessions.Disconnect(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"status": "disconnected",
	})
}

// Channel API

type sendRequestBody struct {
	PeerID         string `json:"peer_id"`
	Text           string `json:"text"`
	ConnectionMode string `json:"connection_mode,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body sendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.router.Send(r.Context(), userID, router.SendRequest{
		ChannelType: channel.Type(r.PathValue("type")),
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
			respondError(w, http.StatusBadGateway, dErr.Reason)
		default:
			s.log.Error().Err(err).Int64("user_id", userID).Msg("send failed")
			respondError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"message_id":      result.MessageID,
		"conversation_id": result.ConversationID,
	})
}

type autoReplyRequestBody struct {
	Enabled        bool   `json:"enabled"`
	ConnectionMode string `json:"connection_mode,omitempty"`
}

func (s *Server) handleAutoReply(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body autoReplyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.router.SetAutoReply(r.Context(), userID,
		channel.Type(r.PathValue("type")), channel.Mode(body.ConnectionMode), body.Enabled)
	if err != nil {
		var vErr *router.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, vErr.Reason)
			return
		}
		respondError(w, http.StatusNotFound, "channel not configured")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":           true,
		"auto_reply":   result.AutoReply,
		"gateway_sync": result.GatewaySync,
	})
}

type channelResponse struct {
	ChannelType    string               `json:"channel_type"`
	ConnectionMode string               `json:"connection_mode"`
	Enabled        bool                 `json:"enabled"`
	Status         string               `json:"status"`
	AutoReply      bool                 `json:"auto_reply"`
	Capabilities   channel.Capabilities `json:"capabilities"`
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	records, err := s.db.ListUserChannels(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}

	channels := make([]channelResponse, len(records))
	for i, rec := range records {
		channels[i] = channelResponse{
			ChannelType:    rec.ChannelType,
			ConnectionMode: rec.ConnectionMode,
			Enabled:        rec.Enabled,
			Status:         rec.Status,
			AutoReply:      rec.AutoReply,
			Capabilities:   channel.CapabilitiesFor(channel.Type(rec.ChannelType)),
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
}
