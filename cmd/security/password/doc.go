// Package password provides argon2id password hashing for roomchat users.
//
// Hashes use a PHC-like encoded string. The caller supplies the per-user salt
// (stored alongside the hash in the users table) so that verification can be
// expressed as hash(password, storedSalt) == storedHash.
//
// Hash strings are treated as untrusted input during Verify; hashes with
// parameters far beyond the configured cost are refused.
package password
