package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for empty or oversized request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotLoggedIn is returned for operations that need an authenticated client.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNotInRoom is returned for room operations by a client outside any room.
	ErrNotInRoom = errors.New("not in a room")

	// ErrNoSessionKey is returned when credentials arrive before KEY_IV.
	ErrNoSessionKey = errors.New("no session key negotiated")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid realtime config")
)

func invalidInput(msg string) error {
	return fmt.Errorf("realtime: %w: %s", ErrInvalidInput, msg)
}
