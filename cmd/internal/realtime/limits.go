package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max message text length (runes).
	maxMessageChars = 4000

	// Ping failures tolerated before the connection is dropped.
	wsMaxPingFailures = 3

	// Inbound frame rate limit defaults.
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

// PlaceholderName is the display name of a client that has not logged in.
const PlaceholderName = "guest"
