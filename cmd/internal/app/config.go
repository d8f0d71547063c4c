package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains the server runtime configuration loaded from ROOMCHAT_* environment variables.
// Package-level tunables (auth, realtime, password) are loaded by their own packages.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json | pretty
	LogColor  string `env:"LOG_COLOR" envDefault:"auto"`  // auto | always | never

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Store selects the persistence backend. Empty means postgres when
	// DATABASE_URL is set and memory otherwise.
	Store      string `env:"STORE"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"roomchat.db"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"DB_SCHEMA" envDefault:"public"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"0"`

	// If true, /readyz returns 503 unless a SQL store is configured and reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB"`

	// If true, ROOMCHAT_TOKEN_HMAC_KEY must be set (>= 32 bytes) and token digests are HMAC-based.
	RequireTokenHMAC bool `env:"REQUIRE_TOKEN_HMAC"`
}

// LoadConfig loads Config from the environment and validates it.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "ROOMCHAT_"})
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StoreDriver resolves the effective store backend.
func (c Config) StoreDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Store))
	if d != "" {
		return d
	}
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return StorePostgres
	}
	return StoreMemory
}

// Validate checks invariants.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: empty http addr")
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogColor)) {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("config: unknown log color mode %q", c.LogColor)
	}

	switch c.StoreDriver() {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("config: sqlite store needs ROOMCHAT_SQLITE_PATH")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("config: postgres store needs ROOMCHAT_DATABASE_URL")
		}
		if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("config: invalid pool bounds min=%d max=%d", c.DBMinConns, c.DBMaxConns)
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("config: shutdown timeout must be > 0")
	}
	return nil
}
