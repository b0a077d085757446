package auth

import (
	"context"
	"net/http"
	"strings"
)

// TokenValidator resolves a bearer token to a user. Identity is owned by a
// separate service; the gateway only verifies tokens against it.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*User, error)
}

// Middleware provides HTTP middleware for authentication
type Middleware struct {
	validator TokenValidator
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(validator TokenValidator) *Middleware {
	return &Middleware{validator: validator}
}

// RequireAuth is middleware that requires a valid bearer token.
// The user is extracted from the token and added to the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, `{"error": "missing authorization token"}`, http.StatusUnauthorized)
			return
		}

		user, err := m.validator.ValidateToken(r.Context(), token)
		if err != nil {
			http.Error(w, `{"error": "invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := SetUserInContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken extracts the token from the Authorization header
// Expects format: "Bearer <token>"
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// Browsers cannot set headers on websocket upgrades, so the event
		// stream passes the token as a query parameter instead.
		return r.URL.Query().Get("token")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
