package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
	"testing"
	"time"

	"roomchat/cmd/internal/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Integration tests are enabled when ROOMCHAT_DATABASE_URL is set.
// This keeps local "go test ./..." fast & deterministic without requiring Postgres.

func TestPostgresStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		pool, schema := mustOpenTestSchemaPool(t)
		st, err := NewPostgresStore(pool, WithSchema(schema))
		if err != nil {
			t.Fatalf("new postgres store: %v", err)
		}
		return st
	})
}

func TestWithSchema_RejectsUnsafeIdentifier(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "  ", "a-b", "1abc", `x"; DROP TABLE users; --`} {
		st := &PostgresStore{}
		if err := WithSchema(in)(st); err == nil {
			t.Fatalf("WithSchema(%q): expected error", in)
		}
	}
	st := &PostgresStore{}
	if err := WithSchema("roomchat_it")(st); err != nil || st.schema != "roomchat_it" {
		t.Fatalf("WithSchema valid: err=%v schema=%q", err, st.schema)
	}
}

// mustOpenTestSchemaPool creates a throwaway schema, migrates it, and returns a
// pool whose search_path points at it.
func mustOpenTestSchemaPool(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("ROOMCHAT_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: ROOMCHAT_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	b := make([]byte, 6)
	_, _ = rand.Read(b)
	schema := "roomchat_it_" + hex.EncodeToString(b)

	admin, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if _, err := admin.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dcancel()
		_, _ = admin.Exec(dctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse ROOMCHAT_DATABASE_URL: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	if err := migrations.Up(ctx, db, migrations.Postgres); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return pool, schema
}
