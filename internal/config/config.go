package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	// Server
	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":8080"`
	Environment string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	Version     string        `env:"VERSION" envDefault:"dev"`
	CommitSHA   string        `env:"COMMIT_SHA" envDefault:"unknown"`

	// Storage
	RedisURL     string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	StoreBackend string        `env:"STORE_BACKEND" envDefault:"redis"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	RoomTTL      time.Duration `env:"ROOM_TTL" envDefault:"1h"`
	LockTTL      time.Duration `env:"LOCK_TTL" envDefault:"5s"`
	LockWait     time.Duration `env:"LOCK_WAIT" envDefault:"5s"`

	// Presence
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"10s"`
	PresenceTTL       time.Duration `env:"PRESENCE_TTL" envDefault:"30s"`

	// Game
	DefaultPhaseDuration int `env:"DEFAULT_PHASE_DURATION" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the parser cannot.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	durations := map[string]time.Duration{
		"ROOM_TTL":           c.RoomTTL,
		"LOCK_TTL":           c.LockTTL,
		"LOCK_WAIT":          c.LockWait,
		"HEARTBEAT_INTERVAL": c.HeartbeatInterval,
		"HEARTBEAT_TIMEOUT":  c.HeartbeatTimeout,
		"PRESENCE_TTL":       c.PresenceTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.DefaultPhaseDuration < 0 {
		return errors.New("DEFAULT_PHASE_DURATION must not be negative")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
