// Package identity owns roomchat's durable user records.
//
// It defines the user Store contract consumed by the auth service, the typed
// errors every store adapter maps driver failures onto, and three adapters:
// in-memory (dev/tests), PostgreSQL (pgx) and SQLite (modernc).
package identity
