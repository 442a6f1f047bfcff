// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Stores  StoreConfig
	Limits  LimitConfig
	Session SessionConfig
	Audit   AuditConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds the secrets and token parameters.
type AuthConfig struct {
	// TokenSecret signs session tokens. Mandatory.
	TokenSecret string

	// InternalSecret authenticates edge instances on the /internal surface.
	// Mandatory.
	InternalSecret string

	TokenTTL time.Duration

	// OperatorEmail and OperatorPassword seed the first operator at startup
	// when both are set. The insert is a no-op once the email exists.
	OperatorEmail    string
	OperatorPassword string
}

// StoreConfig holds backing-store connection settings. RedisAddr may be
// empty: cross-instance fan-out then degrades to local-only delivery.
type StoreConfig struct {
	PostgresDSN string
	RedisAddr   string
	RedisDB     int
}

// LimitConfig holds request throttling settings.
type LimitConfig struct {
	RatePerSec   float64
	RateBurst    int
	MaxBodyBytes int64
}

// SessionConfig tunes the liveness machinery.
type SessionConfig struct {
	// PollInterval is advertised to clients as the recommended check cadence.
	PollInterval time.Duration

	// CacheSize and CacheTTL bound the module-catalog cache.
	CacheSize int
	CacheTTL  time.Duration
}

// AuditConfig tunes trail retention.
type AuditConfig struct {
	// Retention is how long entries are kept before the purge job removes
	// them. Zero disables purging.
	Retention time.Duration

	// PurgeSchedule is a cron expression for the retention job.
	PurgeSchedule string
}

// Load reads configuration from JURIX_* environment variables and validates
// it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("JURIX_ADDR", ":8080"),
			ReadTimeout:     getEnvDuration("JURIX_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("JURIX_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("JURIX_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("JURIX_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			TokenSecret:    getEnv("JURIX_TOKEN_SECRET", ""),
			InternalSecret: getEnv("JURIX_INTERNAL_SECRET", ""),
			TokenTTL:       getEnvDuration("JURIX_TOKEN_TTL", time.Hour),

			OperatorEmail:    getEnv("JURIX_OPERATOR_EMAIL", ""),
			OperatorPassword: getEnv("JURIX_OPERATOR_PASSWORD", ""),
		},
		Stores: StoreConfig{
			PostgresDSN: getEnv("JURIX_PG_DSN", ""),
			RedisAddr:   getEnv("JURIX_REDIS_ADDR", ""),
			RedisDB:     getEnvInt("JURIX_REDIS_DB", 0),
		},
		Limits: LimitConfig{
			RatePerSec:   getEnvFloat("JURIX_RATE_PER_SEC", 50),
			RateBurst:    getEnvInt("JURIX_RATE_BURST", 100),
			MaxBodyBytes: getEnvInt64("JURIX_MAX_BODY_BYTES", 1<<20),
		},
		Session: SessionConfig{
			PollInterval: getEnvDuration("JURIX_POLL_INTERVAL", 30*time.Second),
			CacheSize:    getEnvInt("JURIX_CACHE_SIZE", 1024),
			CacheTTL:     getEnvDuration("JURIX_CACHE_TTL", 5*time.Minute),
		},
		Audit: AuditConfig{
			Retention:     getEnvDuration("JURIX_AUDIT_RETENTION", 0),
			PurgeSchedule: getEnv("JURIX_AUDIT_PURGE_SCHEDULE", "0 3 * * *"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if strings.TrimSpace(c.Auth.TokenSecret) == "" {
		return fmt.Errorf("JURIX_TOKEN_SECRET is required")
	}
	if strings.TrimSpace(c.Auth.InternalSecret) == "" {
		return fmt.Errorf("JURIX_INTERNAL_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.Limits.RatePerSec <= 0 || c.Limits.RateBurst <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	if c.Limits.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.Session.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be at least one second")
	}
	if c.Session.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	if c.Audit.Retention < 0 {
		return fmt.Errorf("audit retention must not be negative")
	}
	if c.Audit.Retention > 0 && strings.TrimSpace(c.Audit.PurgeSchedule) == "" {
		return fmt.Errorf("audit purge schedule is required when retention is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
