package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore is a Store backed by a single-file SQLite database (modernc.org/sqlite).
//
// Ownership model:
//   - SQLiteStore does NOT own *sql.DB; the app opens it once and shares it with
//     the message store.
//
// Concurrency model:
//   - The app caps the pool at one connection, so every transaction is serialized
//     and UpdateTokens is atomic per row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a SQLite-backed user store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("identity: nil db")
	}
	return &SQLiteStore{db: db}, nil
}

// Close is a no-op because the db is owned by the caller.
func (s *SQLiteStore) Close() error { return nil }

const sqliteUserColumns = `id, name, email, password, salt, registered, last_online, tokens, verification_code`

// Exists probes a users column for an exact value.
func (s *SQLiteStore) Exists(ctx context.Context, field Field, value string) (bool, error) {
	const op = "identity.Exists"

	var query string
	switch field {
	case FieldName:
		query = `SELECT EXISTS (SELECT 1 FROM users WHERE name = ?)`
	case FieldEmail:
		query = `SELECT EXISTS (SELECT 1 FROM users WHERE email = ?)`
	default:
		return false, invalid(op, "unknown field")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, probeValue(field, value)).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// CreateUser inserts a user row with an empty token list.
func (s *SQLiteStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
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

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password, salt, registered, last_online, tokens, verification_code)
		 VALUES (?, ?, ?, ?, ?, ?, '[]', ?)`,
		in.Name, in.Email, in.PasswordHash, in.Salt, ms, ms, code,
	)
	if err != nil {
		if field, ok := sqliteClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("%s: last insert id: %w", op, err)
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
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`,
		NormalizeEmail(email),
	)
	return sqliteScanUser(op, row)
}

// GetUserByID returns the user with the given id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	const op = "identity.GetUserByID"
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`,
		id,
	)
	return sqliteScanUser(op, row)
}

// UpdateTokens reads and rewrites the token list inside one transaction.
func (s *SQLiteStore) UpdateTokens(ctx context.Context, userID int64, fn TokenUpdateFunc) error {
	const op = "identity.UpdateTokens"
	if fn == nil {
		return invalid(op, "nil update func")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT tokens FROM users WHERE id = ?`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return userNotFound(op)
		}
		return fmt.Errorf("%s: read: %w", op, err)
	}

	current, err := decodeTokens([]byte(raw))
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

	if _, err := tx.ExecContext(ctx, `UPDATE users SET tokens = ? WHERE id = ?`, enc, userID); err != nil {
		return fmt.Errorf("%s: update: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// TouchLastOnline records a successful login.
func (s *SQLiteStore) TouchLastOnline(ctx context.Context, userID int64, now time.Time) error {
	const op = "identity.TouchLastOnline"
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_online = ? WHERE id = ?`, now.UnixMilli(), userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return sqliteRequireRow(op, res)
}

// SetVerificationCode replaces or clears the pending verification code.
func (s *SQLiteStore) SetVerificationCode(ctx context.Context, userID int64, code *string) error {
	const op = "identity.SetVerificationCode"
	res, err := s.db.ExecContext(ctx, `UPDATE users SET verification_code = ? WHERE id = ?`, code, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return sqliteRequireRow(op, res)
}

func sqliteRequireRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return userNotFound(op)
	}
	return nil
}

func sqliteScanUser(op string, row *sql.Row) (User, error) {
	var (
		u          User
		registered int64
		lastOnline int64
		raw        string
		code       sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Salt, &registered, &lastOnline, &raw, &code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	u.Registered = time.UnixMilli(registered).UTC()
	u.LastOnline = time.UnixMilli(lastOnline).UTC()
	if code.Valid {
		c := code.String
		u.VerificationCode = &c
	}
	u.Tokens, err = decodeTokens([]byte(raw))
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func sqliteClassifyUniqueViolation(err error) (field string, ok bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}

	// "UNIQUE constraint failed: users.email"
	msg := se.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return "email", true
	case strings.Contains(msg, "users.name"):
		return "name", true
	default:
		return "", true
	}
}
