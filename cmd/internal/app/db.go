package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"roomchat/cmd/identity"
	"roomchat/cmd/internal/migrations"
	"roomchat/cmd/internal/realtime"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// stores bundles the user and message stores of one backend plus its lifecycle hooks.
type stores struct {
	driver   string
	users    identity.Store
	messages realtime.MessageStore

	// ping is nil for the in-memory backend.
	ping  func(ctx context.Context) error
	close func()
}

func (s *stores) Close() {
	_ = s.messages.Close()
	_ = s.users.Close()
	if s.close != nil {
		s.close()
	}
}

// newStores opens and migrates the configured backend.
func newStores(ctx context.Context, cfg Config, log Logger) (*stores, error) {
	switch cfg.StoreDriver() {
	case StorePostgres:
		return newPostgresStores(ctx, cfg, log)
	case StoreSQLite:
		return newSQLiteStores(ctx, cfg, log)
	default:
		log.Info("db.disabled.inmemory_store")
		return &stores{
			driver:   StoreMemory,
			users:    identity.NewInMemoryStore(),
			messages: realtime.NewInMemoryStore(),
		}, nil
	}
}

func newPostgresStores(ctx context.Context, cfg Config, log Logger) (*stores, error) {
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrations.Up(ctx, db, migrations.Postgres)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	// Ownership model:
	// - app owns pool lifecycle
	// - store Close() is a no-op
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}
	messages, err := realtime.NewPostgresStore(pool, realtime.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return &stores{
		driver:   StorePostgres,
		users:    users,
		messages: messages,
		ping:     func(ctx context.Context) error { return PingDB(ctx, pool, 2*time.Second) },
		close:    pool.Close,
	}, nil
}

func newSQLiteStores(ctx context.Context, cfg Config, log Logger) (*stores, error) {
	db, err := OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(ctx, db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}

	users, err := identity.NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	messages, err := realtime.NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath)
	return &stores{
		driver:   StoreSQLite,
		users:    users,
		messages: messages,
		ping: func(ctx context.Context) error {
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return db.PingContext(pctx)
		},
		close: func() { _ = db.Close() },
	}, nil
}

// NewDBPool builds a pgxpool, creates the configured schema when missing and validates connectivity.
// Connections use the schema as search_path so migrations land in it.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	schema := strings.TrimSpace(cfg.DBSchema)
	if schema == "" {
		schema = "public"
	}
	if schema != "public" {
		if err := ensureSchema(ctx, cfg.DatabaseURL, schema); err != nil {
			return nil, err
		}
		pcfg.ConnConfig.RuntimeParams["search_path"] = schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return pool, nil
}

func ensureSchema(ctx context.Context, url, schema string) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := pgx.Connect(cctx, url)
	if err != nil {
		return fmt.Errorf("db: connect: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(cctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("db: create schema %q: %w", schema, err)
	}
	return nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Ping(ctx)
}

// OpenSQLite opens (creating when missing) a single-file database.
// The pool is capped at one connection so writes are serialized.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("db: empty sqlite path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("db: sqlite dir: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db: ping sqlite: %w", err)
	}
	return db, nil
}
