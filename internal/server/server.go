// Package server exposes the gateway's HTTP surface: the authenticated
// dashboard API, the websocket event stream, and the internal
// process-to-process endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatwire/chatwire/internal/auth"
	"github.com/chatwire/chatwire/internal/database"
	"github.com/chatwire/chatwire/internal/relay"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/session"
)

type Server struct {
	db            *database.DB
	sessions      *session.Manager
	router        *router.Router
	hub           *relay.Hub
	authmw        *auth.Middleware
	gatewaySecret string
	httpSrv       *http.Server
	port          int
	log           zerolog.Logger
}

type Config struct {
	DB            *database.DB
	Sessions      *session.Manager
	Router        *router.Router
	Hub           *relay.Hub
	Auth          *auth.Middleware
	GatewaySecret string
	Port          int
	Log           zerolog.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		db:            cfg.DB,
		sessions:      cfg.Sessions,
		router:        cfg.Router,
		hub:           cfg.Hub,
		authmw:        cfg.Auth,
		gatewaySecret: cfg.GatewaySecret,
		port:          cfg.Port,
		log:           cfg.Log.With().Str("component", "server").Logger(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", s.handleHealthCheck)

	// WhatsApp pairing API
	mux.Handle("POST /api/channels/whatsapp/connect", s.authed(s.handleWhatsAppConnect))
	mux.Handle("GET /api/channels/whatsapp/status", s.authed(s.handleWhatsAppStatus))
	mux.Handle("POST /api/channels/whatsapp/disconnect", s.authed(s.handleWhatsAppDisconnect))

	// Channel API
	mux.Handle("GET /api/channels", s.authed(s.handleListChannels))
	mux.Handle("POST /api/channels/{type}/send", s.authed(s.handleSend))
	mux.Handle("POST /api/channels/{type}/auto-reply", s.authed(s.handleAutoReply))

	// Live event stream
	mux.Handle("GET /api/events/stream", s.authed(s.handleEventStream))

	// Process-to-process API, shared-secret authenticated
	mux.HandleFunc("POST /internal/gateway/send", s.handleGatewaySend)
	mux.HandleFunc("POST /internal/gateway/auto-reply", s.handleGatewayAutoReply)
}

// authed wraps a handler with bearer-token authentication.
func (s *Server) authed(fn http.HandlerFunc) http.Handler {
	return s.authmw.RequireAuth(fn)
}

func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the server's HTTP handler for testing purposes
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// corsMiddleware adds CORS headers for the dashboard
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
