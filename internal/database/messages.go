package database

import (
	"database/sql"
	"fmt"
	"time"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Direction      string    `json:"direction"`
	ChannelType    string    `json:"channel_type"`
	ChannelPeer    string    `json:"channel_peer"`
	CreatedAt      time.Time `json:"created_at"`
}

func (d *DB) InsertMessage(m *Message) error {
	_, err := d.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, direction, channel_type, channel_peer)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.Role, m.Content, m.Direction, m.ChannelType, m.ChannelPeer)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (d *DB) GetMessage(id string) (*Message, error) {
	var m Message
	err := d.QueryRow(`
		SELECT id, conversation_id, role, content, direction, channel_type, channel_peer, created_at
		FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Direction, &m.ChannelType, &m.ChannelPeer, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &m, nil
}

func (d *DB) ListMessages(conversationID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.Query(`
		SELECT id, conversation_id, role, content, direction, channel_type, channel_peer, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Direction, &m.ChannelType, &m.ChannelPeer, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func (d *DB) CountMessages(conversationID int64) (int, error) {
	var count int
	err := d.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?",
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
