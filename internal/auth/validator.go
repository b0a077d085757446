package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPValidator verifies bearer tokens against the identity service's
// verification endpoint.
type HTTPValidator struct {
	verifyURL string
	httpc     *http.Client
}

func NewHTTPValidator(verifyURL string) *HTTPValidator {
	return &HTTPValidator{
		verifyURL: verifyURL,
		httpc:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPValidator) ValidateToken(ctx context.Context, token string) (*User, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token rejected (status %d)", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("verify response missing user id")
	}
	return &user, nil
}
