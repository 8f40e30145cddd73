// Package config reads the process configuration from environment variables
// so main stays lean.
package config

import (
	"os"
	"strconv"
	"time"
)

// Redis holds connection settings for the token revocation list. An empty
// Addr means Redis is not configured and the in-memory list is used.
type Redis struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Chat holds the completion backend settings.
type Chat struct {
	BackendURL string
	APIKey     string
	Timeout    time.Duration
}

// Maintenance holds the background cleanup cadence and retention windows.
type Maintenance struct {
	Interval             time.Duration
	UserInactiveDays     int
	SessionInactiveHours int
	MessageRetentionDays int
}

// Config is the full process configuration.
type Config struct {
	Addr        string
	DatabaseURL string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	Redis       Redis
	Chat        Chat
	Maintenance Maintenance
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything but the secrets.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("ALI_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Addr:        envString("ALI_ADDR", ":8080"),
		DatabaseURL: os.Getenv("ALI_DATABASE_URL"),

		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envString("ALI_JWT_ISSUER", "ali"),
		JWTAudience:   envString("ALI_JWT_AUDIENCE", "ali-api"),

		Redis: Redis{
			Addr:         os.Getenv("ALI_REDIS_ADDR"),
			Password:     os.Getenv("ALI_REDIS_PASSWORD"),
			DB:           envInt("ALI_REDIS_DB", 0),
			PoolSize:     envInt("ALI_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ALI_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("ALI_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ALI_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ALI_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},

		Chat: Chat{
			BackendURL: envString("ALI_CHAT_BACKEND_URL", "http://localhost:8000"),
			APIKey:     os.Getenv("ALI_CHAT_API_KEY"),
			Timeout:    envDuration("ALI_CHAT_TIMEOUT", 60*time.Second),
		},

		Maintenance: Maintenance{
			Interval:             envDuration("ALI_CLEANUP_INTERVAL", time.Hour),
			UserInactiveDays:     envInt("ALI_USER_INACTIVE_DAYS", 90),
			SessionInactiveHours: envInt("ALI_SESSION_INACTIVE_HOURS", 24),
			MessageRetentionDays: envInt("ALI_MESSAGE_RETENTION_DAYS", 365),
		},
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}
