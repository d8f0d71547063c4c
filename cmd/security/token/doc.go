// Package token generates and hashes roomchat's opaque credentials.
//
// Auto-login tokens and verification codes are random strings over [A-Z0-9].
// Tokens are stored server-side only as hex digests:
// - SHA-256(token) when no HMAC key is configured (dev).
// - HMAC-SHA256(token, key) when ROOMCHAT_TOKEN_HMAC_KEY is set.
//
// Policy: when RequireTokenHMAC is enabled, callers enforce a minimum key
// size (>= 32 bytes) at startup.
package token
