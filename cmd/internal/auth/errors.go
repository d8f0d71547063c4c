package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is the uniform login rejection (unknown email or wrong password).
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLockedOut rejects a login while the email is locked after repeated failures.
	ErrLockedOut = errors.New("too many failed logins")

	// ErrTokenMismatch is returned when an auto-login token matches none of the user's tokens.
	// All tokens of that user have been revoked by the time it is returned.
	ErrTokenMismatch = errors.New("auto-login token mismatch")

	// ErrEmailTaken / ErrNameTaken reject registration of an existing account.
	ErrEmailTaken = errors.New("email already registered")
	ErrNameTaken  = errors.New("name already registered")

	// ErrVerificationMismatch is returned when a verification code does not match the pending one.
	ErrVerificationMismatch = errors.New("verification code mismatch")

	// ErrInvalidInput is returned for empty or policy-violating inputs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid auth config")
)

// IsRejection reports whether err is an expected, client-caused rejection
// (as opposed to a storage or internal failure).
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrLockedOut),
		errors.Is(err, ErrTokenMismatch),
		errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrNameTaken),
		errors.Is(err, ErrVerificationMismatch),
		errors.Is(err, ErrInvalidInput):
		return true
	default:
		return false
	}
}

func invalidInput(cause error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, cause)
}
