package realtime

import (
	"context"
	"strings"
	"time"
)

const (
	// DefaultHistoryLimit is the number of messages returned on room entry.
	DefaultHistoryLimit = 200
	maxHistoryLimit     = 1000
)

// StoredMessage is the canonical persisted message representation.
type StoredMessage struct {
	ID       int64
	User     string
	Text     string
	RoomName string
	Show     bool
	Time     time.Time
}

// RoomRecord is the durable row behind an in-memory Room.
type RoomRecord struct {
	ID      int64
	Name    string
	Created time.Time
}

// MessageStore persists rooms and messages.
//
// Requirements:
//   - EnsureRoom is idempotent per name (UNIQUE(name)).
//   - Message ids are assigned on insert and increase monotonically.
//   - History is ordered by id ASC and scoped to one room.
type MessageStore interface {
	// EnsureRoom returns the room row for name, inserting it when missing.
	EnsureRoom(ctx context.Context, name string, now time.Time) (rec RoomRecord, created bool, err error)
	AppendMessage(ctx context.Context, in AppendMessageInput) (StoredMessage, error)
	FetchHistory(ctx context.Context, in FetchHistoryInput) ([]StoredMessage, error)
	Close() error
}

// AppendMessageInput describes a message append request.
// Hidden messages are stored but never returned by FetchHistory.
type AppendMessageInput struct {
	User     string
	Text     string
	RoomName string
	Hidden   bool
	Now      time.Time
}

// FetchHistoryInput selects the newest Latest visible messages with id > AfterID.
type FetchHistoryInput struct {
	RoomName string
	AfterID  int64
	Latest   int
}

func validateAppend(in AppendMessageInput) (AppendMessageInput, error) {
	switch {
	case strings.TrimSpace(in.RoomName) == "":
		return in, invalidInput("missing room name")
	case strings.TrimSpace(in.User) == "":
		return in, invalidInput("missing user")
	case in.Text == "":
		return in, invalidInput("empty text")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

func normalizeFetch(in FetchHistoryInput) (FetchHistoryInput, error) {
	if strings.TrimSpace(in.RoomName) == "" {
		return in, invalidInput("missing room name")
	}
	if in.AfterID < 0 {
		in.AfterID = 0
	}
	if in.Latest <= 0 {
		in.Latest = DefaultHistoryLimit
	}
	if in.Latest > maxHistoryLimit {
		in.Latest = maxHistoryLimit
	}
	return in, nil
}
