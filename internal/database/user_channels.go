package database

import (
	"database/sql"
	"fmt"
	"time"
)

// UserChannel is one user's configuration for a channel type in a given
// connection mode. A user may hold both a personal and a business record for
// the same channel type.
type UserChannel struct {
	UserID         int64     `json:"user_id"`
	ChannelType    string    `json:"channel_type"`
	ConnectionMode string    `json:"connection_mode"`
	Enabled        bool      `json:"enabled"`
	Status         string    `json:"status"`
	AutoReply      bool      `json:"auto_reply"`
	Config         string    `json:"config,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpsertUserChannel makes sure a record exists for the triple, leaving an
// existing record's flags untouched.
func (d *DB) UpsertUserChannel(userID int64, channelType, mode string) error {
	_, err := d.Exec(`
		INSERT INTO user_channels (user_id, channel_type, connection_mode)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, channel_type, connection_mode) DO NOTHING
	`, userID, channelType, mode)
	if err != nil {
		return fmt.Errorf("failed to upsert user channel: %w", err)
	}
	return nil
}

// SetChannelStatus updates both the enabled flag and the status string.
func (d *DB) SetChannelStatus(userID int64, channelType, mode string, enabled bool, status string) error {
	_, err := d.Exec(`
		UPDATE user_channels
		SET enabled = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND channel_type = ? AND connection_mode = ?
	`, enabled, status, userID, channelType, mode)
	if err != nil {
		return fmt.Errorf("failed to set channel status: %w", err)
	}
	return nil
}

// UpdateChannelStatus updates the status string without touching enabled.
func (d *DB) UpdateChannelStatus(userID int64, channelType, mode, status string) error {
	_, err := d.Exec(`
		UPDATE user_channels
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND channel_type = ? AND connection_mode = ?
	`, status, userID, channelType, mode)
	if err != nil {
		return fmt.Errorf("failed to update channel status: %w", err)
	}
	return nil
}

// SetAutoReply flips the auto-reply flag for the channel record.
func (d *DB) SetAutoReply(userID int64, channelType, mode string, enabled bool) error {
	result, err := d.Exec(`
		UPDATE user_channels
		SET auto_reply = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND channel_type = ? AND connection_mode = ?
	`, enabled, userID, channelType, mode)
	if err != nil {
		return fmt.Errorf("failed to set auto reply: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check auto reply update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no channel record for user %d %s/%s", userID, channelType, mode)
	}
	return nil
}

// SetChannelConfig stores channel-specific configuration, e.g. a bot token.
func (d *DB) SetChannelConfig(userID int64, channelType, mode, config string) error {
	_, err := d.Exec(`
		UPDATE user_channels
		SET config = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND channel_type = ? AND connection_mode = ?
	`, config, userID, channelType, mode)
	if err != nil {
		return fmt.Errorf("failed to set channel config: %w", err)
	}
	return nil
}

func (d *DB) GetUserChannel(userID int64, channelType, mode string) (*UserChannel, error) {
	var uc UserChannel
	err := d.QueryRow(`
		SELECT user_id, channel_type, connection_mode, enabled, status, auto_reply, config, created_at, updated_at
		FROM user_channels
		WHERE user_id = ? AND channel_type = ? AND connection_mode = ?
	`, userID, channelType, mode).Scan(
		&uc.UserID, &uc.ChannelType, &uc.ConnectionMode, &uc.Enabled,
		&uc.Status, &uc.AutoReply, &uc.Config, &uc.CreatedAt, &uc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user channel: %w", err)
	}
	return &uc, nil
}

// ListUserChannels returns all channel records for one user.
func (d *DB) ListUserChannels(userID int64) ([]UserChannel, error) {
	rows, err := d.Query(`
		SELECT user_id, channel_type, connection_mode, enabled, status, auto_reply, config, created_at, updated_at
		FROM user_channels
		WHERE user_id = ?
		ORDER BY channel_type, connection_mode
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user channels: %w", err)
	}
	defer rows.Close()

	return scanUserChannels(rows)
}

// ListEnabledChannels returns every enabled record of the given channel type
// across all users. Used at startup to restore long-lived connections.
func (d *DB) ListEnabledChannels(channelType string) ([]UserChannel, error) {
	rows, err := d.Query(`
		SELECT user_id, channel_type, connection_mode, enabled, status, auto_reply, config, created_at, updated_at
		FROM user_channels
		WHERE channel_type = ? AND enabled = 1
	`, channelType)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled channels: %w", err)
	}
	defer rows.Close()

	return scanUserChannels(rows)
}

func scanUserChannels(rows *sql.Rows) ([]UserChannel, error) {
	var channels []UserChannel
	for rows.Next() {
		var uc UserChannel
		if err := rows.Scan(
			&uc.UserID, &uc.ChannelType, &uc.ConnectionMode, &uc.Enabled,
			&uc.Status, &uc.AutoReply, &uc.Config, &uc.CreatedAt, &uc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user channel: %w", err)
		}
		channels = append(channels, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user channels: %w", err)
	}
	return channels, nil
}
