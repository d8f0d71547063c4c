package realtime

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the realtime tunables.
type Config struct {
	// SendLimiter.
	MaxSends    int           `env:"MAX_SENDS" envDefault:"10"`
	SendTimeout time.Duration `env:"SEND_TIMEOUT" envDefault:"2s"`

	// Messages returned on room entry.
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"200"`

	// WebSocket gateway.
	DevInsecure       bool          `env:"WS_DEV_INSECURE"`
	OriginRequired    bool          `env:"WS_ORIGIN_REQUIRED" envDefault:"true"`
	AllowedOrigins    []string      `env:"WS_ALLOWED_ORIGINS" envDefault:"http://localhost,http://127.0.0.1" envSeparator:","`
	WriteTimeout      time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"5s"`
	ReadIdleTimeout   time.Duration `env:"WS_READ_IDLE_TIMEOUT" envDefault:"2m"`
	SendQueueSize     int           `env:"WS_SEND_QUEUE" envDefault:"256"`
	HeartbeatInterval time.Duration `env:"WS_HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"WS_HEARTBEAT_TIMEOUT" envDefault:"5s"`
	RateEvents        int           `env:"WS_RATE_EVENTS" envDefault:"120"`
	RateWindow        time.Duration `env:"WS_RATE_WINDOW" envDefault:"10s"`
}

// DefaultConfig returns the built-in defaults (origin policy: localhost only).
func DefaultConfig() Config {
	return Config{
		MaxSends:          10,
		SendTimeout:       2 * time.Second,
		HistoryLimit:      DefaultHistoryLimit,
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:      5 * time.Second,
		ReadIdleTimeout:   2 * time.Minute,
		SendQueueSize:     256,
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		RateEvents:        rateLimitEvents,
		RateWindow:        rateLimitWindow,
	}
}

// LoadConfigFromEnv reads ROOMCHAT_-prefixed variables, e.g. ROOMCHAT_MAX_SENDS,
// ROOMCHAT_SEND_TIMEOUT, ROOMCHAT_WS_ALLOWED_ORIGINS (comma separated).
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "ROOMCHAT_"})
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants.
func (c Config) Validate() error {
	switch {
	case c.MaxSends < 1:
		return fmt.Errorf("%w: max sends must be >= 1: %d", ErrConfig, c.MaxSends)
	case c.SendTimeout <= 0:
		return fmt.Errorf("%w: send timeout must be > 0", ErrConfig)
	case c.HistoryLimit < 1 || c.HistoryLimit > maxHistoryLimit:
		return fmt.Errorf("%w: history limit out of range [1..%d]: %d", ErrConfig, maxHistoryLimit, c.HistoryLimit)
	case c.WriteTimeout <= 0 || c.ReadIdleTimeout <= 0:
		return fmt.Errorf("%w: ws timeouts must be > 0", ErrConfig)
	case c.HeartbeatInterval <= 0 || c.HeartbeatTimeout <= 0:
		return fmt.Errorf("%w: heartbeat durations must be > 0", ErrConfig)
	case c.SendQueueSize < 1:
		return fmt.Errorf("%w: send queue must be >= 1: %d", ErrConfig, c.SendQueueSize)
	case c.RateEvents < 1 || c.RateWindow <= 0:
		return fmt.Errorf("%w: rate limit must be positive", ErrConfig)
	}
	return nil
}
