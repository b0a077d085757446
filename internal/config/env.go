package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
}

type Config struct {
	// Storage
	DBPath              string
	WhatsAppSessionPath string // base path; per-user suffix appended

	// HTTP
	HTTPPort int

	// Auth (session issuance is external; we only verify tokens)
	AuthVerifyURL string

	// Cross-process gateway
	GatewayPeerURL string // base URL of the process owning live connections
	GatewaySecret  string

	// Networking
	SOCKSProxyAddr string // optional; empty means direct connection

	// Pairing
	PairingTTL time.Duration

	// Logging
	LogLevel string
	DevMode  bool
}

func LoadFromEnv() *Config {
	return &Config{
		DBPath:              getEnvOrDefault("CHATWIRE_DB_PATH", "./chatwire.db"),
		WhatsAppSessionPath: getEnvOrDefault("CHATWIRE_WA_SESSION_PATH", "./whatsapp.db"),
		HTTPPort:            getEnvAsIntOrDefault("CHATWIRE_HTTP_PORT", 8080),
		AuthVerifyURL:       os.Getenv("CHATWIRE_AUTH_VERIFY_URL"),
		GatewayPeerURL:      os.Getenv("CHATWIRE_GATEWAY_PEER_URL"),
		GatewaySecret:       os.Getenv("CHATWIRE_GATEWAY_SECRET"),
		SOCKSProxyAddr:      os.Getenv("CHATWIRE_SOCKS_PROXY"),
		PairingTTL:          getEnvAsDurationOrDefault("CHATWIRE_PAIRING_TTL", 180*time.Second),
		LogLevel:            getEnvOrDefault("CHATWIRE_LOG_LEVEL", "info"),
		DevMode:             getEnvAsBoolOrDefault("CHATWIRE_DEV_MODE", false),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
