package app

import (
	"errors"
	"fmt"

	"roomchat/cmd/security/token"
)

// ValidateSecurityConfig enforces the token digest policy at startup.
// With RequireTokenHMAC set, auto-login token digests must be HMAC-based, so a
// missing or short key stops the server instead of falling back to plain SHA-256.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Key length is measured in bytes; the key is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return fmt.Errorf("security policy: ROOMCHAT_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("security policy: ROOMCHAT_REQUIRE_TOKEN_HMAC=true but %s is too short (min 32 bytes)", token.HMACEnvKey)
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: ROOMCHAT_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
