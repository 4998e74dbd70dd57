// Package config holds runtime configuration loaded from the environment
// and the moderation policy constants.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported Message Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config holds all configuration for the relay.
type Config struct {
	Port string
	Env  string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	BadgerPath  string
	RedisURL    string

	RoomIdleTimeout time.Duration
	LeaseTTL        time.Duration

	AllowedOrigins []string
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", "./data/chatrelay.db"),
		BadgerPath:      getEnv("BADGER_PATH", "./data/badger"),
		RedisURL:        os.Getenv("REDIS_URL"),
		RoomIdleTimeout: getDuration("ROOM_IDLE_TIMEOUT", 30*time.Second),
		LeaseTTL:        getPositiveDuration("LEASE_TTL", 30*time.Second),
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	switch cfg.StoreDriver {
	case DriverSQLite, DriverBadger:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for store driver %q", cfg.StoreDriver)
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	// Leases are stored with millisecond TTLs and renewed at a third of the TTL.
	if cfg.LeaseTTL < time.Second {
		return nil, fmt.Errorf("LEASE_TTL must be at least 1s, got %s", cfg.LeaseTTL)
	}

	if cfg.IsProduction() && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required in production")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// StoreLocation returns the DSN or path of the selected store driver.
func (c *Config) StoreLocation() string {
	switch c.StoreDriver {
	case DriverPostgres:
		return c.DatabaseURL
	case DriverBadger:
		return c.BadgerPath
	default:
		return c.SQLitePath
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

// getPositiveDuration is getDuration for settings where zero is meaningless,
// such as TTLs and intervals derived from them.
func getPositiveDuration(key string, defaultValue time.Duration) time.Duration {
	if d := getDuration(key, defaultValue); d > 0 {
		return d
	}
	return defaultValue
}
