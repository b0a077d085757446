package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(ctx context.Context, token string) (*User, error) {
	if token != "valid" {
		return nil, fmt.Errorf("unknown token")
	}
	return &User{ID: 7, Email: "user@example.com"}, nil
}

func TestRequireAuth_ValidToken(t *testing.T) {
	mw := NewMiddleware(stubValidator{})

	var gotUser *User
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotUser)
	assert.Equal(t, int64(7), gotUser.ID)
}

func TestRequireAuth_MissingToken(t *testing.T) {
	mw := NewMiddleware(stubValidator{})
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	mw := NewMiddleware(stubValidator{})
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_QueryParamFallback(t *testing.T) {
	mw := NewMiddleware(stubValidator{})
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Websocket upgrades cannot carry an Authorization header from a browser.
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream?token=valid", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetUserID_NoUser(t *testing.T) {
	_, err := GetUserID(context.Background())
	assert.Error(t, err)
}
