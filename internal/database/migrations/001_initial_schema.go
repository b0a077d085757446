package migrations

import (
	"database/sql"
)

func init() {
	Register(Migration{
		Version: 1,
		Name:    "initial_schema",
		Up:      initialSchema,
	})
}

func initialSchema(db *sql.DB) error {
	statements := []string{
		// Users table (accounts are issued elsewhere; this anchors foreign keys)
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// One record per user x channel type x connection mode
		`CREATE TABLE IF NOT EXISTS user_channels (
			user_id INTEGER NOT NULL,
			channel_type TEXT NOT NULL,
			connection_mode TEXT NOT NULL DEFAULT 'personal',
			enabled BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'disconnected',
			auto_reply BOOLEAN NOT NULL DEFAULT 0,
			config TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, channel_type, connection_mode),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Append-only connection lifecycle log; the source of truth when no
		// in-memory session exists
		`CREATE TABLE IF NOT EXISTS channel_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			channel_type TEXT NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('connecting', 'qr', 'connected', 'logged_out', 'error', 'disconnected')),
			payload TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_events_lookup ON channel_events(user_id, channel_type, created_at DESC, id DESC)`,

		// Conversation threads, one per (user, channel type, peer)
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			channel_type TEXT NOT NULL,
			peer_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, channel_type, peer_id),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_recency ON conversations(user_id, updated_at DESC)`,

		// Contact registry, drives the inbox list ordered by recency
		`CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			channel_type TEXT NOT NULL,
			peer_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			last_message_at DATETIME NOT NULL,
			UNIQUE(user_id, channel_type, peer_id),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_recency ON contacts(user_id, last_message_at DESC)`,

		// Messages belong to exactly one conversation
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			direction TEXT NOT NULL CHECK(direction IN ('inbound', 'outbound')),
			channel_type TEXT NOT NULL,
			channel_peer TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
