package password

import (
	"fmt"
	"math"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline cost and policy.
func DefaultConfig() Config {
	// Parallelism is clamped to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  32,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// envConfig mirrors the env surface; nil fields keep the defaults.
type envConfig struct {
	MinLen         *int    `env:"PASSWORD_MIN_LEN"`
	MaxLen         *int    `env:"PASSWORD_MAX_LEN"`
	RejectVeryWeak *bool   `env:"PASSWORD_REJECT_VERY_WEAK"`
	MemoryKiB      *uint32 `env:"ARGON2_MEMORY_KIB"`
	Iterations     *uint32 `env:"ARGON2_ITERATIONS"`
	Parallelism    *uint32 `env:"ARGON2_PARALLELISM"`
	KeyLen         *uint32 `env:"ARGON2_KEY_LEN"`
}

// FromEnv loads config from ROOMCHAT_-prefixed environment variables.
//
// Env surface:
// - ROOMCHAT_PASSWORD_MIN_LEN
// - ROOMCHAT_PASSWORD_MAX_LEN
// - ROOMCHAT_PASSWORD_REJECT_VERY_WEAK (true/false)
// - ROOMCHAT_ARGON2_MEMORY_KIB
// - ROOMCHAT_ARGON2_ITERATIONS
// - ROOMCHAT_ARGON2_PARALLELISM
// - ROOMCHAT_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	var raw envConfig
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: "ROOMCHAT_"}); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}
	return raw.apply(DefaultConfig())
}

func (raw envConfig) apply(cfg Config) (Config, error) {
	if raw.MinLen != nil {
		if err := inRange("ROOMCHAT_PASSWORD_MIN_LEN", *raw.MinLen, 1, 1024); err != nil {
			return Config{}, err
		}
		cfg.Policy.MinLength = *raw.MinLen
	}
	if raw.MaxLen != nil {
		if err := inRange("ROOMCHAT_PASSWORD_MAX_LEN", *raw.MaxLen, 1, 4096); err != nil {
			return Config{}, err
		}
		cfg.Policy.MaxLength = *raw.MaxLen
	}
	if raw.RejectVeryWeak != nil {
		cfg.Policy.RejectVeryWeak = *raw.RejectVeryWeak
	}
	if raw.MemoryKiB != nil {
		if err := inRange("ROOMCHAT_ARGON2_MEMORY_KIB", *raw.MemoryKiB, 8*1024, 1024*1024); err != nil {
			return Config{}, err
		}
		cfg.Params.MemoryKiB = *raw.MemoryKiB
	}
	if raw.Iterations != nil {
		if err := inRange("ROOMCHAT_ARGON2_ITERATIONS", *raw.Iterations, 1, 20); err != nil {
			return Config{}, err
		}
		cfg.Params.Iterations = *raw.Iterations
	}
	if raw.Parallelism != nil {
		if err := inRange("ROOMCHAT_ARGON2_PARALLELISM", *raw.Parallelism, 1, math.MaxUint8); err != nil {
			return Config{}, err
		}
		cfg.Params.Parallelism = uint8(*raw.Parallelism) // #nosec G115 -- range-checked above.
	}
	if raw.KeyLen != nil {
		if err := inRange("ROOMCHAT_ARGON2_KEY_LEN", *raw.KeyLen, 16, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.KeyLength = *raw.KeyLen
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}
	return cfg, nil
}

func inRange[T int | uint32](key string, v, minVal, maxVal T) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%s: out of range [%d..%d]", key, minVal, maxVal)
	}
	return nil
}
