// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	Auction AuctionConfig
	Store   StoreConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"5s"`
}

// AuctionConfig holds engine and scheduler settings.
type AuctionConfig struct {
	// LockWait bounds how long a bid waits on the per-auction
	// serialization boundary before failing as retryable.
	LockWait time.Duration `envconfig:"AUCTION_LOCK_WAIT" default:"2s"`

	// SweepInterval is how often the lifecycle scheduler scans for
	// auctions whose window has opened or closed.
	SweepInterval time.Duration `envconfig:"AUCTION_SWEEP_INTERVAL" default:"2s"`

	// RelayChannel is the Redis pub/sub channel shared by instances.
	RelayChannel string `envconfig:"AUCTION_RELAY_CHANNEL" default:"auction:events"`
}

// StoreConfig holds persistence settings. An empty DatabaseURL selects the
// in-memory store; a RedisURL adds the read-through cache and event relay.
type StoreConfig struct {
	DatabaseURL string        `envconfig:"DATABASE_URL" default:""`
	RedisURL    string        `envconfig:"REDIS_URL" default:""`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"30s"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}
