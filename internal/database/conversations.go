package database

import (
	"database/sql"
	"fmt"
	"time"
)

type Conversation struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ChannelType string    `json:"channel_type"`
	PeerID      string    `json:"peer_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpsertConversation finds or creates the thread for (user, channel, peer)
// and bumps its updated_at. A non-empty title replaces a previously empty
// one but never overwrites an existing title.
func (d *DB) UpsertConversation(userID int64, channelType, peerID, title string) (*Conversation, error) {
	_, err := d.Exec(`
		INSERT INTO conversations (user_id, channel_type, peer_id, title)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, channel_type, peer_id) DO UPDATE SET
			updated_at = CURRENT_TIMESTAMP,
			title = CASE WHEN conversations.title = '' AND excluded.title != '' THEN excluded.title ELSE conversations.title END
	`, userID, channelType, peerID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	return d.GetConversationByPeer(userID, channelType, peerID)
}

func (d *DB) GetConversation(id int64) (*Conversation, error) {
	var c Conversation
	err := d.QueryRow(`
		SELECT id, user_id, channel_type, peer_id, title, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.UserID, &c.ChannelType, &c.PeerID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, nil
}

func (d *DB) GetConversationByPeer(userID int64, channelType, peerID string) (*Conversation, error) {
	var c Conversation
	err := d.QueryRow(`
		SELECT id, user_id, channel_type, peer_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ? AND channel_type = ? AND peer_id = ?
	`, userID, channelType, peerID).Scan(
		&c.ID, &c.UserID, &c.ChannelType, &c.PeerID, &c.Title, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation by peer: %w", err)
	}
	return &c, nil
}

func (d *DB) ListConversations(userID int64) ([]Conversation, error) {
	rows, err := d.Query(`
		SELECT id, user_id, channel_type, peer_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.ChannelType, &c.PeerID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return conversations, nil
}
