package database

import (
	"fmt"
	"time"
)

type Contact struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	ChannelType   string    `json:"channel_type"`
	PeerID        string    `json:"peer_id"`
	DisplayName   string    `json:"display_name"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// UpsertContact records message activity with a peer. The display name is
// only replaced by a non-empty value, so a nameless outbound send never
// erases a name learned from an inbound message.
func (d *DB) UpsertContact(userID int64, channelType, peerID, displayName string, lastMessageAt time.Time) error {
	_, err := d.Exec(`
		INSERT INTO contacts (user_id, channel_type, peer_id, display_name, last_message_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, channel_type, peer_id) DO UPDATE SET
			last_message_at = excluded.last_message_at,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE contacts.display_name END
	`, userID, channelType, peerID, displayName, lastMessageAt)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

func (d *DB) ListContacts(userID int64) ([]Contact, error) {
	rows, err := d.Query(`
		SELECT id, user_id, channel_type, peer_id, display_name, last_message_at
		FROM contacts
		WHERE user_id = ?
		ORDER BY last_message_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.ChannelType, &c.PeerID, &c.DisplayName, &c.LastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}
	return contacts, nil
}
