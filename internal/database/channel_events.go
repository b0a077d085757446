package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Connection lifecycle event kinds. The log is append-only; readers take the
// latest row as the channel's last known state.
const (
	EventKindConnecting   = "connecting"
	EventKindQR           = "qr"
	EventKindConnected    = "connected"
	EventKindLoggedOut    = "logged_out"
	EventKindError        = "error"
	EventKindDisconnected = "disconnected"
)

type ChannelEvent struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ChannelType string    `json:"channel_type"`
	Kind        string    `json:"kind"`
	Payload     string    `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d *DB) AppendChannelEvent(userID int64, channelType, kind, payload string) error {
	_, err := d.Exec(`
		INSERT INTO channel_events (user_id, channel_type, kind, payload)
		VALUES (?, ?, ?, ?)
	`, userID, channelType, kind, payload)
	if err != nil {
		return fmt.Errorf("failed to append channel event: %w", err)
	}
	return nil
}

// LatestChannelEvent returns the most recent event for the pair, or nil when
// the log is empty. The id tiebreaker matters: CURRENT_TIMESTAMP has second
// resolution and pairing transitions can land within the same second.
func (d *DB) LatestChannelEvent(userID int64, channelType string) (*ChannelEvent, error) {
	var evt ChannelEvent
	err := d.QueryRow(`
		SELECT id, user_id, channel_type, kind, payload, created_at
		FROM channel_events
		WHERE user_id = ? AND channel_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID, channelType).Scan(
		&evt.ID, &evt.UserID, &evt.ChannelType, &evt.Kind, &evt.Payload, &evt.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest channel event: %w", err)
	}
	return &evt, nil
}

// ClearChannelEvents drops the log for the pair. Called when a new pairing
// attempt starts and when the user disconnects, so stale terminal states
// never shadow the next attempt.
func (d *DB) ClearChannelEvents(userID int64, channelType string) error {
	_, err := d.Exec(`
		DELETE FROM channel_events WHERE user_id = ? AND channel_type = ?
	`, userID, channelType)
	if err != nil {
		return fmt.Errorf("failed to clear channel events: %w", err)
	}
	return nil
}
