package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwire/chatwire/internal/bus"
	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/database"
)

const (
	defaultTTL            = 3 * time.Minute
	defaultConnectedGrace = 5 * time.Second
)

// TransportFactory opens a pairing transport. Injected so tests can drive the
// state machine without a live socket.
type TransportFactory func(ctx context.Context, cfg channel.Config) (channel.PairingTransport, error)

type Config struct {
	// SessionBasePath is the credential store path prefix; each user gets
	// their own store file derived from it.
	SessionBasePath string
	ProxyAddr       string
	TTL             time.Duration
	ConnectedGrace  time.Duration
}

// Manager owns all live pairing sessions, at most one per user. Starting a
// new attempt supersedes any prior one.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	db      *database.DB
	bus     *bus.Bus
	factory TransportFactory
	cfg     Config

	onConnected func(userID int64)

	log zerolog.Logger
}

func NewManager(db *database.DB, b *bus.Bus, factory TransportFactory, cfg Config, log zerolog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.ConnectedGrace <= 0 {
		cfg.ConnectedGrace = defaultConnectedGrace
	}
	return &Manager{
		sessions: make(map[int64]*Session),
		db:       db,
		bus:      b,
		factory:  factory,
		cfg:      cfg,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// SetOnConnected registers a hook invoked after a successful pairing has
// settled, once the pairing socket has been released.
func (m *Manager) SetOnConnected(fn func(userID int64)) {
	m.onConnected = fn
}

// SessionPathFor returns the per-user credential store path.
func (m *Manager) SessionPathFor(userID int64) string {
	return fmt.Sprintf("%s.user_%d", m.cfg.SessionBasePath, userID)
}

// ExternalStatus maps an in-memory session status to the polling vocabulary.
func ExternalStatus(st Status) string {
	if st == StatusConnecting {
		return "waiting"
	}
	return string(st)
}

// StartPairing begins a new pairing attempt for the user, superseding any
// session already in flight. The durable trail is best effort: a write
// failure is logged and the in-memory attempt proceeds.
func (m *Manager) StartPairing(ctx context.Context, userID int64) {
	m.Cleanup(userID)

	s := newSession(userID)
	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()

	ctype := string(channel.TypeWhatsApp)
	mode := string(channel.ModePersonal)
	if err := m.db.UpsertUserChannel(userID, ctype, mode); err != nil {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to ensure channel record")
	}
	if err := m.db.UpdateChannelStatus(userID, ctype, mode, "connecting"); err != nil {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to update channel status")
	}
	// Clear any stale terminal state before logging the new attempt.
	if err := m.db.ClearChannelEvents(userID, ctype); err != nil {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to clear event log")
	}
	m.persistEvent(userID, database.EventKindConnecting, "")

	s.mu.Lock()
	s.ttl = time.AfterFunc(m.cfg.TTL, func() { m.expire(userID, s) })
	s.mu.Unlock()

	go m.run(ctx, s)

	m.publish(userID, StatusConnecting, "", "")
}

// Status returns the live session snapshot, or nil when no session exists.
// Callers fall back to the durable event log in that case.
func (m *Manager) Status(userID int64) *Snapshot {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	snap := s.snapshot()
	return &snap
}

// Cleanup tears down the user's live session if one exists. Idempotent.
func (m *Manager) Cleanup(userID int64) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if ok {
		s.close()
	}
}

// Disconnect tears down the session, discards stored credentials and resets
// the durable record. The next connection requires a fresh pairing.
func (m *Manager) Disconnect(ctx context.Context, userID int64) error {
	m.Cleanup(userID)

	if err := os.Remove(m.SessionPathFor(userID)); err != nil && !os.IsNotExist(err) {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to remove credential store")
	}

	ctype := string(channel.TypeWhatsApp)
	if err := m.db.ClearChannelEvents(userID, ctype); err != nil {
		return fmt.Errorf("failed to clear event log: %w", err)
	}
	if err := m.db.SetChannelStatus(userID, ctype, string(channel.ModePersonal), false, "disconnected"); err != nil {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to reset channel record")
	}

	m.bus.PublishStatus(bus.StatusChange{
		UserID:      userID,
		ChannelType: channel.TypeWhatsApp,
		Status:      "disconnected",
	})
	return nil
}

func (m *Manager) run(ctx context.Context, s *Session) {
	transport, err := m.factory(ctx, channel.Config{
		SessionPath: m.SessionPathFor(s.UserID),
		ProxyAddr:   m.cfg.ProxyAddr,
	})
	if err != nil {
		// The attempt never reached the network layer; surface the reason in
		// memory only, the durable log stays at "connecting".
		m.log.Error().Err(err).Int64("user_id", s.UserID).Msg("failed to open pairing transport")
		m.failInMemory(s, StatusError, err.Error())
		return
	}

	// A supersede or disconnect may have landed while the transport was
	// opening; in that case release it instead of racing the new session.
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		transport.Close()
		return
	default:
	}
	s.transport = transport
	s.mu.Unlock()

	for {
		select {
		case <-s.done:
			return
		case evt := <-transport.Events():
			if terminal := m.reduce(s, evt); terminal {
				return
			}
		}
	}
}

// reduce applies one lifecycle event to the session. Returns true when the
// session has reached a terminal state and the run loop should exit.
func (m *Manager) reduce(s *Session, evt channel.LifecycleEvent) bool {
	switch evt.Kind {
	case channel.LifecycleQR:
		dataURL, err := channel.GenerateQRDataURL(evt.QRCode)
		if err != nil {
			m.log.Warn().Err(err).Int64("user_id", s.UserID).Msg("failed to render QR code")
			return false
		}
		s.mu.Lock()
		s.status = StatusQR
		s.qr = dataURL
		s.mu.Unlock()
		m.persistEvent(s.UserID, database.EventKindQR, dataURL)
		m.publish(s.UserID, StatusQR, dataURL, "")
		return false

	case channel.LifecycleOpen:
		s.mu.Lock()
		s.status = StatusConnected
		s.qr = ""
		if s.ttl != nil {
			s.ttl.Stop()
		}
		s.mu.Unlock()
		m.persistEvent(s.UserID, database.EventKindConnected, "")
		ctype := string(channel.TypeWhatsApp)
		if err := m.db.SetChannelStatus(s.UserID, ctype, string(channel.ModePersonal), true, "connected"); err != nil {
			m.log.Warn().Err(err).Int64("user_id", s.UserID).Msg("failed to enable channel record")
		}
		m.publish(s.UserID, StatusConnected, "", "")
		// Keep the pairing socket alive briefly so the phone finishes its
		// post-pair sync, then hand over to the long-lived connection.
		time.AfterFunc(m.cfg.ConnectedGrace, func() { m.settle(s.UserID, s) })
		return false

	case channel.LifecycleClose:
		switch evt.Code {
		case channel.CloseCodeRestartRequired:
			// The socket layer reconnects on its own; not a state change.
			m.log.Debug().Int64("user_id", s.UserID).Msg("transport restarting")
			return false
		case channel.CloseCodeLoggedOut:
			m.fail(s, StatusLoggedOut, "logged out, re-pairing required", database.EventKindLoggedOut)
			ctype := string(channel.TypeWhatsApp)
			if err := m.db.SetChannelStatus(s.UserID, ctype, string(channel.ModePersonal), false, "logged_out"); err != nil {
				m.log.Warn().Err(err).Int64("user_id", s.UserID).Msg("failed to disable channel record")
			}
			if err := os.Remove(m.SessionPathFor(s.UserID)); err != nil && !os.IsNotExist(err) {
				m.log.Warn().Err(err).Int64("user_id", s.UserID).Msg("failed to remove credential store")
			}
			return true
		default:
			m.fail(s, StatusError, fmt.Sprintf("connection closed (code %d)", evt.Code), database.EventKindError)
			return true
		}

	case channel.LifecycleCredsUpdated:
		m.log.Debug().Int64("user_id", s.UserID).Msg("credentials updated")
		return false
	}
	return false
}

// expire fires when the pairing window closes without a successful pair.
func (m *Manager) expire(userID int64, s *Session) {
	m.mu.Lock()
	current, ok := m.sessions[userID]
	if !ok || current != s {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, userID)
	m.mu.Unlock()

	m.log.Info().Int64("user_id", userID).Msg("pairing window expired")
	s.close()
	// No durable event: polls fall back to the log's last entry and the
	// dashboard treats a stale "connecting"/"qr" as expired.
	m.bus.PublishStatus(bus.StatusChange{
		UserID:      userID,
		ChannelType: channel.TypeWhatsApp,
		Status:      "disconnected",
	})
}

// settle removes a successfully paired session after the grace period and
// triggers the long-lived connection hook.
func (m *Manager) settle(userID int64, s *Session) {
	m.mu.Lock()
	current, ok := m.sessions[userID]
	if !ok || current != s {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, userID)
	m.mu.Unlock()

	s.close()
	if m.onConnected != nil {
		m.onConnected(userID)
	}
}

// fail records a terminal failure. The in-memory transition always happens;
// the durable write is best effort.
func (m *Manager) fail(s *Session, st Status, msg string, eventKind string) {
	m.persistEvent(s.UserID, eventKind, msg)
	m.failInMemory(s, st, msg)
}

// failInMemory moves the session to a terminal status and releases the
// socket. The session stays registered so the status probe keeps answering
// until the TTL or a superseding start removes it.
func (m *Manager) failInMemory(s *Session, st Status, msg string) {
	s.mu.Lock()
	s.status = st
	s.errMsg = msg
	s.qr = ""
	s.mu.Unlock()

	m.publish(s.UserID, st, "", msg)
	s.releaseTransport()
}

func (m *Manager) persistEvent(userID int64, kind, payload string) {
	if err := m.db.AppendChannelEvent(userID, string(channel.TypeWhatsApp), kind, payload); err != nil {
		// The in-memory session remains authoritative; only cross-process
		// visibility degrades.
		m.log.Warn().Err(err).Int64("user_id", userID).Str("kind", kind).Msg("failed to persist channel event")
	}
}

func (m *Manager) publish(userID int64, st Status, qr, errMsg string) {
	m.bus.PublishStatus(bus.StatusChange{
		UserID:      userID,
		ChannelType: channel.TypeWhatsApp,
		Status:      ExternalStatus(st),
		QR:          qr,
		Error:       errMsg,
	})
}
