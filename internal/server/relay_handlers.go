package server

import (
	"net/http"

	"github.com/chatwire/chatwire/internal/relay"
)

// handleEventStream upgrades the request to a websocket and streams the
// authenticated user's events until the socket drops.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	relay.ServeWS(s.hub, w, r, userID, s.log)
}
