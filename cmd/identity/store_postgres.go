package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - UpdateTokens locks the user row (SELECT ... FOR UPDATE) for the duration of the callback.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by this store (default: "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed user store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) users() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

const pgUserColumns = `id, name, email, password, salt, registered, last_online, tokens, verification_code`

// Exists probes a users column for an exact value.
func (s *PostgresStore) Exists(ctx context.Context, field Field, value string) (bool, error) {
	const op = "identity.Exists"
	if !field.Valid() {
		return false, invalid(op, "unknown field")
	}

	// field is validated above; it is one of two fixed column names.
	col := pgx.Identifier{string(field)}.Sanitize()

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.users()+` WHERE `+col+` = $1)`,
		probeValue(field, value),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// CreateUser inserts a user row with an empty token list.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	var code *string
	if in.VerificationCode != "" {
		c := in.VerificationCode
		code = &c
	}

	ms := in.Now.UnixMilli()

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+s.users()+` (name, email, password, salt, registered, last_online, tokens, verification_code)
		 VALUES ($1, $2, $3, $4, $5, $5, '[]'::jsonb, $6)
		 RETURNING id`,
		in.Name, in.Email, in.PasswordHash, in.Salt, ms, code,
	).Scan(&id)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return User{
		ID:               id,
		Name:             in.Name,
		Email:            in.Email,
		PasswordHash:     in.PasswordHash,
		Salt:             in.Salt,
		Registered:       time.UnixMilli(ms).UTC(),
		LastOnline:       time.UnixMilli(ms).UTC(),
		Tokens:           []string{},
		VerificationCode: code,
	}, nil
}

// GetUserByEmail returns the user registered under email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM `+s.users()+` WHERE email = $1`,
		NormalizeEmail(email),
	)
	return pgScanUser(op, row)
}

// GetUserByID returns the user with the given id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	const op = "identity.GetUserByID"
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM `+s.users()+` WHERE id = $1`,
		id,
	)
	return pgScanUser(op, row)
}

// UpdateTokens locks the user row and rewrites its token list inside one transaction.
func (s *PostgresStore) UpdateTokens(ctx context.Context, userID int64, fn TokenUpdateFunc) error {
	const op = "identity.UpdateTokens"
	if fn == nil {
		return invalid(op, "nil update func")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT tokens FROM `+s.users()+` WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return userNotFound(op)
		}
		return fmt.Errorf("%s: lock: %w", op, err)
	}

	current, err := decodeTokens(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	enc, err := encodeTokens(next)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+s.users()+` SET tokens = $2::jsonb WHERE id = $1`,
		userID, enc,
	); err != nil {
		return fmt.Errorf("%s: update: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// TouchLastOnline records a successful login.
func (s *PostgresStore) TouchLastOnline(ctx context.Context, userID int64, now time.Time) error {
	const op = "identity.TouchLastOnline"
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+` SET last_online = $2 WHERE id = $1`,
		userID, now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return userNotFound(op)
	}
	return nil
}

// SetVerificationCode replaces or clears the pending verification code.
func (s *PostgresStore) SetVerificationCode(ctx context.Context, userID int64, code *string) error {
	const op = "identity.SetVerificationCode"
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+` SET verification_code = $2 WHERE id = $1`,
		userID, code,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return userNotFound(op)
	}
	return nil
}

func pgScanUser(op string, row pgx.Row) (User, error) {
	var (
		u          User
		registered int64
		lastOnline int64
		raw        []byte
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Salt, &registered, &lastOnline, &raw, &u.VerificationCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	u.Registered = time.UnixMilli(registered).UTC()
	u.LastOnline = time.UnixMilli(lastOnline).UTC()
	u.Tokens, err = decodeTokens(raw)
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email" || strings.Contains(c, "email"):
		return "email", true
	case c == "uq_users_name" || strings.Contains(c, "name"):
		return "name", true
	default:
		return "", true
	}
}

func decodeTokens(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func encodeTokens(tokens []string) (string, error) {
	if tokens == nil {
		tokens = []string{}
	}
	b, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("encode tokens: %w", err)
	}
	return string(b), nil
}
