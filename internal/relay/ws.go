package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard authenticates with a bearer token, not a cookie, so
		// cross-origin upgrades carry no ambient credentials.
		return true
	},
}

// ServeWS upgrades an authenticated dashboard request and streams the user's
// events until the socket drops. Callers must resolve the user id before
// calling; connections without one are rejected upstream.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, userID int64, log zerolog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	ch := hub.Subscribe(userID)

	// Read pump: we expect no client frames, but reading is what detects a
	// dropped connection and answers pings.
	go func() {
		defer hub.Unsubscribe(userID, ch)
		defer conn.Close()

		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case evt, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				hub.Unsubscribe(userID, ch)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				hub.Unsubscribe(userID, ch)
				return
			}
		}
	}
}
