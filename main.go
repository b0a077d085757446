package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwire/chatwire/internal/auth"
	"github.com/chatwire/chatwire/internal/bus"
	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/database"
	"github.com/chatwire/chatwire/internal/gateway"
	"github.com/chatwire/chatwire/internal/logger"
	"github.com/chatwire/chatwire/internal/relay"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/server"
	"github.com/chatwire/chatwire/internal/session"
)

func main() {
	cfg := config.LoadFromEnv()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	db, err := database.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	b := bus.New(log)
	hub := relay.NewHub(log)
	hub.Attach(b)

	registry := channel.NewRegistry()

	factory := func(ctx context.Context, c channel.Config) (channel.PairingTransport, error) {
		return channel.NewWhatsAppPairing(ctx, c, log)
	}
	sessions := session.NewManager(db, b, factory, session.Config{
		SessionBasePath: cfg.WhatsAppSessionPath,
		ProxyAddr:       cfg.SOCKSProxyAddr,
		TTL:             cfg.PairingTTL,
	}, log)

	var gw router.GatewayCaller
	if cfg.GatewayPeerURL != "" {
		gw = gateway.NewClient(cfg.GatewayPeerURL, cfg.GatewaySecret, log)
		log.Info().Str("peer", cfg.GatewayPeerURL).Msg("gateway peer configured")
	}

	rt := router.New(db, registry, gw, b, log)

	// After a successful pairing settles, bring up the long-lived connection
	// in this process.
	sessions.SetOnConnected(func(userID int64) {
		connectWhatsApp(userID, sessions.SessionPathFor(userID), cfg, registry, rt, log)
	})

	restoreChannels(db, cfg, sessions, registry, rt, log)

	if cfg.AuthVerifyURL == "" {
		log.Fatal().Msg("CHATWIRE_AUTH_VERIFY_URL is required")
	}
	authmw := auth.NewMiddleware(auth.NewHTTPValidator(cfg.AuthVerifyURL))

	srv := server.New(server.Config{
		DB:            db,
		Sessions:      sessions,
		Router:        rt,
		Hub:           hub,
		Auth:          authmw,
		GatewaySecret: cfg.GatewaySecret,
		Port:          cfg.HTTPPort,
		Log:           log,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	waitForShutdown(srv, log)
}

// connectWhatsApp resumes a paired device session and registers it for
// routing and inbound relay.
func connectWhatsApp(userID int64, sessionPath string, cfg *config.Config, registry *channel.Registry, rt *router.Router, log zerolog.Logger) {
	wa := channel.NewWhatsApp(log)
	wa.OnMessage(func(msg channel.Message) {
		if err := rt.RecordInbound(context.Background(), userID, msg); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("failed to record inbound message")
		}
	})

	if err := wa.Connect(context.Background(), channel.Config{
		SessionPath: sessionPath,
		ProxyAddr:   cfg.SOCKSProxyAddr,
	}); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("failed to connect whatsapp channel")
		return
	}

	registry.Put(userID, channel.TypeWhatsApp, channel.ModePersonal, wa)
	log.Info().Int64("user_id", userID).Msg("whatsapp channel connected")
}

// restoreChannels reconnects every enabled channel record at startup.
func restoreChannels(db *database.DB, cfg *config.Config, sessions *session.Manager, registry *channel.Registry, rt *router.Router, log zerolog.Logger) {
	waRecords, err := db.ListEnabledChannels(string(channel.TypeWhatsApp))
	if err != nil {
		log.Warn().Err(err).Msg("failed to list enabled whatsapp channels")
	}
	for _, rec := range waRecords {
		connectWhatsApp(rec.UserID, sessions.SessionPathFor(rec.UserID), cfg, registry, rt, log)
	}

	tgRecords, err := db.ListEnabledChannels(string(channel.TypeTelegram))
	if err != nil {
		log.Warn().Err(err).Msg("failed to list enabled telegram channels")
	}
	for _, rec := range tgRecords {
		var botCfg struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(rec.Config), &botCfg); err != nil || botCfg.Token == "" {
			log.Warn().Int64("user_id", rec.UserID).Msg("telegram channel enabled but no bot token configured")
			continue
		}

		userID := rec.UserID
		tg := channel.NewTelegram(log)
		tg.OnMessage(func(msg channel.Message) {
			if err := rt.RecordInbound(context.Background(), userID, msg); err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Msg("failed to record inbound message")
			}
		})
		if err := tg.Connect(context.Background(), channel.Config{Token: botCfg.Token}); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("failed to connect telegram channel")
			continue
		}
		registry.Put(userID, channel.TypeTelegram, channel.Mode(rec.ConnectionMode), tg)
		log.Info().Int64("user_id", userID).Msg("telegram channel connected")
	}
}

func waitForShutdown(srv *server.Server, log zerolog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}
}
