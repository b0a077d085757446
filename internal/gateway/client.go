// Package gateway is the cross-process client: when another process owns a
// user's live connection, operations are forwarded to it over HTTP with a
// shared secret.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/router"
)

// SecretHeader authenticates process-to-process calls. Both sides are
// configured with the same value.
const SecretHeader = "X-Gateway-Secret"

const maxRetries = 3

type Client struct {
	baseURL string
	secret  string
	httpc   *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL, secret string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

type sendPayload struct {
	UserID         int64  `json:"user_id"`
	ChannelType    string `json:"channel_type"`
	ConnectionMode string `json:"connection_mode"`
	PeerID         string `json:"peer_id"`
	Text           string `json:"text"`
}

type autoReplyPayload struct {
	UserID         int64  `json:"user_id"`
	ChannelType    string `json:"channel_type"`
	ConnectionMode string `json:"connection_mode"`
	Enabled        bool   `json:"enabled"`
}

func (c *Client) Send(ctx context.Context, userID int64, req router.SendRequest) error {
	return c.post(ctx, "/internal/gateway/send", req.ChannelType, sendPayload{
		UserID:         userID,
		ChannelType:    string(req.ChannelType),
		ConnectionMode: string(req.Mode),
		PeerID:         req.PeerID,
		Text:           req.Text,
	})
}

func (c *Client) SyncAutoReply(ctx context.Context, userID int64, channelType channel.Type, mode channel.Mode, enabled bool) error {
	return c.post(ctx, "/internal/gateway/auto-reply", channelType, autoReplyPayload{
		UserID:         userID,
		ChannelType:    string(channelType),
		ConnectionMode: string(mode),
		Enabled:        enabled,
	})
}

// post delivers the payload with retries. Transport failures are retried
// with exponential backoff; a 4xx answer means the peer understood us and
// said no, so it is never retried.
func (c *Client) post(ctx context.Context, path string, channelType channel.Type, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode gateway payload: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(SecretHeader, c.secret)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		var apiErr struct {
			Error string `json:"error"`
		}
		reason := fmt.Sprintf("gateway peer returned %d", resp.StatusCode)
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			reason = apiErr.Error
		}
		err = &channel.DeliveryError{ChannelType: channelType, Reason: reason}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if _, ok := err.(*channel.DeliveryError); ok {
			return err
		}
		return &channel.DeliveryError{ChannelType: channelType, Reason: "gateway peer unreachable", Err: err}
	}
	return nil
}
