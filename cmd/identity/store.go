package identity

import (
	"context"
	"time"
)

// User is a registered chat user.
//
// Tokens holds server-side digests of outstanding auto-login tokens, oldest
// first. The plain token value is handed to the client once and never stored.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Salt         string

	Registered time.Time
	LastOnline time.Time

	Tokens []string

	// VerificationCode is nil once the email address has been verified.
	VerificationCode *string
}

// CreateUserInput describes a user registration request.
// PasswordHash and Salt are computed by the caller; the store never sees plain passwords.
type CreateUserInput struct {
	Name             string
	Email            string
	PasswordHash     string
	Salt             string
	VerificationCode string
	Now              time.Time
}

// Field names a users column that can be probed with Exists.
type Field string

const (
	FieldName  Field = "name"
	FieldEmail Field = "email"
)

// Valid reports whether f is one of the probe-able columns.
func (f Field) Valid() bool {
	return f == FieldName || f == FieldEmail
}

// TokenUpdateFunc computes the next token list from the current one.
// Returning an error aborts the update and leaves the stored list untouched.
type TokenUpdateFunc func(current []string) ([]string, error)

// Store is the user persistence boundary.
//
// Error contract:
//   - missing rows: NotFoundError (errors.Is(err, ErrNotFound))
//   - duplicate name/email: ConflictError with Field "name" or "email"
//   - bad arguments: OpError{Kind: ErrInvalidInput}
type Store interface {
	// Exists probes a users column for an exact value. Email values are normalized first.
	Exists(ctx context.Context, field Field, value string) (bool, error)

	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)

	// UpdateTokens runs fn as an atomic read-modify-write of one user's token list.
	// Concurrent updates of the same user are serialized.
	UpdateTokens(ctx context.Context, userID int64, fn TokenUpdateFunc) error

	TouchLastOnline(ctx context.Context, userID int64, now time.Time) error

	// SetVerificationCode replaces the pending code; nil marks the email verified.
	SetVerificationCode(ctx context.Context, userID int64, code *string) error

	Close() error
}

func validateCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Name = NormalizeName(in.Name)
	in.Email = NormalizeEmail(in.Email)
	switch {
	case in.Name == "":
		return in, invalid(op, "missing name")
	case in.Email == "":
		return in, invalid(op, "missing email")
	case in.PasswordHash == "" || in.Salt == "":
		return in, invalid(op, "missing password hash")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

func probeValue(field Field, value string) string {
	if field == FieldEmail {
		return NormalizeEmail(value)
	}
	return NormalizeName(value)
}

func cloneTokens(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
