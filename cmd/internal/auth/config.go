package auth

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines runtime configuration for the auth subsystem.
type Config struct {
	// MaxTokens bounds the per-user auto-login token list; issuing beyond it evicts the oldest.
	MaxTokens int `env:"MAX_TOKENS" envDefault:"10"`

	// MaxTokenLength bounds presented tokens before hashing.
	MaxTokenLength int `env:"MAX_TOKEN_LENGTH" envDefault:"256"`

	// Progressive login lockout per email. Failures older than LockoutWindow are forgotten;
	// a zero threshold disables that step.
	LockoutWindow          time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`
	LockoutShortThreshold  int           `env:"LOCKOUT_SHORT_THRESHOLD" envDefault:"5"`
	LockoutShortDuration   time.Duration `env:"LOCKOUT_SHORT_DURATION" envDefault:"1m"`
	LockoutLongThreshold   int           `env:"LOCKOUT_LONG_THRESHOLD" envDefault:"10"`
	LockoutLongDuration    time.Duration `env:"LOCKOUT_LONG_DURATION" envDefault:"10m"`
	LockoutSevereThreshold int           `env:"LOCKOUT_SEVERE_THRESHOLD" envDefault:"20"`
	LockoutSevereDuration  time.Duration `env:"LOCKOUT_SEVERE_DURATION" envDefault:"1h"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      10,
		MaxTokenLength: 256,

		LockoutWindow:          15 * time.Minute,
		LockoutShortThreshold:  5,
		LockoutShortDuration:   time.Minute,
		LockoutLongThreshold:   10,
		LockoutLongDuration:    10 * time.Minute,
		LockoutSevereThreshold: 20,
		LockoutSevereDuration:  time.Hour,
	}
}

// LoadConfigFromEnv loads configuration from ROOMCHAT_AUTH_* variables.
//
// Optional:
//   - ROOMCHAT_AUTH_MAX_TOKENS (1..100)
//   - ROOMCHAT_AUTH_MAX_TOKEN_LENGTH (32..4096)
//   - ROOMCHAT_AUTH_LOCKOUT_WINDOW
//   - ROOMCHAT_AUTH_LOCKOUT_{SHORT,LONG,SEVERE}_{THRESHOLD,DURATION}
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "ROOMCHAT_AUTH_"})
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
	if c.MaxTokens < 1 || c.MaxTokens > 100 {
		return fmt.Errorf("%w: max tokens out of range [1..100]: %d", ErrConfig, c.MaxTokens)
	}
	if c.MaxTokenLength < 32 || c.MaxTokenLength > 4096 {
		return fmt.Errorf("%w: max token length out of range [32..4096]: %d", ErrConfig, c.MaxTokenLength)
	}
	if c.LockoutWindow <= 0 {
		return fmt.Errorf("%w: lockout window must be > 0", ErrConfig)
	}
	for _, st := range c.lockoutSteps() {
		if st.threshold < 0 || (st.threshold > 0 && st.duration <= 0) {
			return fmt.Errorf("%w: invalid lockout step %d/%s", ErrConfig, st.threshold, st.duration)
		}
	}
	return nil
}
