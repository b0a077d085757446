// Package main provides a development server for exercising the dashboard
// without real network connections. It runs with in-memory SQLite, accepts a
// fixed bearer token, and simulates the WhatsApp pairing flow: a QR code is
// issued immediately and the session "connects" a few seconds later.
//
// Usage:
//
//	go run cmd/testserver/main.go
//
// Authenticate requests with "Authorization: Bearer dev-token".
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatwire/chatwire/internal/auth"
	"github.com/chatwire/chatwire/internal/bus"
	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/database"
	"github.com/chatwire/chatwire/internal/logger"
	"github.com/chatwire/chatwire/internal/relay"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/server"
	"github.com/chatwire/chatwire/internal/session"
)

const devToken = "dev-token"

// devValidator accepts the fixed development token.
type devValidator struct {
	user *auth.User
}

func (v devValidator) ValidateToken(ctx context.Context, token string) (*auth.User, error) {
	if token != devToken {
		return nil, fmt.Errorf("unknown token")
	}
	return v.user, nil
}

// simulatedPairing emits a QR code right away and connects shortly after,
// mimicking a phone scanning the code.
type simulatedPairing struct {
	events chan channel.LifecycleEvent
	done   chan struct{}
}

func newSimulatedPairing() *simulatedPairing {
	t := &simulatedPairing{
		events: make(chan channel.LifecycleEvent, 4),
		done:   make(chan struct{}),
	}
	go func() {
		t.events <- channel.LifecycleEvent{Kind: channel.LifecycleQR, QRCode: "2@simulated-pairing-code"}
		select {
		case <-t.done:
		case <-time.After(5 * time.Second):
			t.events <- channel.LifecycleEvent{Kind: channel.LifecycleOpen}
		}
	}()
	return t
}

func (t *simulatedPairing) Events() <-chan channel.LifecycleEvent { return t.events }

func (t *simulatedPairing) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	return nil
}

func main() {
	cfg := config.LoadFromEnv()
	log := logger.New(logger.Config{Level: "debug", Pretty: true})

	log.Info().Msg("starting development server with in-memory database")

	db, err := database.New(":memory:")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database")
	}
	defer db.Close()

	user, err := db.CreateUser("dev@localhost", "Dev User")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed dev user")
	}
	log.Info().Int64("user_id", user.ID).Str("token", devToken).Msg("dev user ready")

	b := bus.New(log)
	hub := relay.NewHub(log)
	hub.Attach(b)

	registry := channel.NewRegistry()

	factory := func(ctx context.Context, c channel.Config) (channel.PairingTransport, error) {
		return newSimulatedPairing(), nil
	}
	sessions := session.NewManager(db, b, factory, session.Config{
		SessionBasePath: os.TempDir() + "/chatwire-dev-whatsapp.db",
		TTL:             cfg.PairingTTL,
	}, log)

	rt := router.New(db, registry, nil, b, log)

	srv := server.New(server.Config{
		DB:            db,
		Sessions:      sessions,
		Router:        rt,
		Hub:           hub,
		Auth:          auth.NewMiddleware(devValidator{user: &auth.User{ID: user.ID, Email: user.Email, Name: user.Name}}),
		GatewaySecret: "dev-secret",
		Port:          cfg.HTTPPort,
		Log:           log,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
