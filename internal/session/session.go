// Package session runs QR pairing attempts for personal-account networks.
// Each user gets at most one live session; the in-memory session is
// authoritative while it exists, and the durable event log answers status
// polls after the session is gone or from another process.
package session

import (
	"sync"
	"time"

	"github.com/chatwire/chatwire/internal/channel"
)

// Status is the in-memory state of a live pairing session.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusQR         Status = "qr"
	StatusConnected  Status = "connected"
	StatusLoggedOut  Status = "logged_out"
	StatusError      Status = "error"
)

// Session tracks one in-flight pairing attempt.
type Session struct {
	UserID    int64
	StartedAt time.Time

	mu          sync.Mutex
	status      Status
	qr          string // data URL, present only while status == qr
	errMsg      string
	transport   channel.PairingTransport
	ttl         *time.Timer
	done        chan struct{}
	releaseOnce sync.Once
}

// Snapshot is a point-in-time copy of a session's externally visible state.
type Snapshot struct {
	UserID    int64
	Status    Status
	QR        string
	Error     string
	StartedAt time.Time
}

func newSession(userID int64) *Session {
	return &Session{
		UserID:    userID,
		StartedAt: time.Now(),
		status:    StatusConnecting,
		done:      make(chan struct{}),
	}
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		UserID:    s.UserID,
		Status:    s.status,
		QR:        s.qr,
		Error:     s.errMsg,
		StartedAt: s.StartedAt,
	}
}

// releaseTransport stops the run loop and closes the socket while leaving
// the session registered, so a terminal status stays observable until the
// TTL or a superseding start removes it. Idempotent.
func (s *Session) releaseTransport() {
	s.releaseOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		transport := s.transport
		s.mu.Unlock()
		if transport != nil {
			transport.Close()
		}
	})
}

// close stops the session's timer and transport. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	if s.ttl != nil {
		s.ttl.Stop()
	}
	s.mu.Unlock()
	s.releaseTransport()
}
