package realtime

import (
	"time"

	"roomchat/cmd/identity/ids"
)

// NewConnectionID returns a ULID used as the transport identity of a connection.
func NewConnectionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
