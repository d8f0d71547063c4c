// Package auth implements roomchat's account and session-token subsystem.
//
// It owns registration, password login, token auto-login, logout, and email
// verification codes. Security model for auto-login tokens:
//   - tokens are opaque random strings; only their digests are persisted
//   - a user keeps at most MaxTokens tokens; issuing evicts the oldest
//   - a presented token is single-use: a match removes it and issues a replacement
//   - a presented token that matches nothing is treated as a compromise signal
//     and wipes every outstanding token of that user
package auth
