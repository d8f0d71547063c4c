package realtime

import (
	"context"
	"sync"
	"time"
)

const (
	memMaxMessagesPerRoom = 10_000
)

// InMemoryStore is a dev-only fallback when no database is configured.
// Ids are allocated from a single process-wide counter, so they are
// monotonic across rooms as with a SQL serial column.
type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	roomID int64
	rooms  map[string]RoomRecord
	msgs   map[string][]StoredMessage // room name -> ordered by id
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rooms: make(map[string]RoomRecord),
		msgs:  make(map[string][]StoredMessage),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// EnsureRoom returns the existing room or inserts it.
func (s *InMemoryStore) EnsureRoom(ctx context.Context, name string, now time.Time) (RoomRecord, bool, error) {
	if name == "" {
		return RoomRecord{}, false, invalidInput("missing room name")
	}
	if err := ctx.Err(); err != nil {
		return RoomRecord{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.rooms[name]; ok {
		return rec, false, nil
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = time.UnixMilli(now.UnixMilli()).UTC()
	s.roomID++
	rec := RoomRecord{ID: s.roomID, Name: name, Created: now}
	s.rooms[name] = rec
	return rec, true, nil
}

// AppendMessage stores a message and assigns its id.
func (s *InMemoryStore) AppendMessage(ctx context.Context, in AppendMessageInput) (StoredMessage, error) {
	in, err := validateAppend(in)
	if err != nil {
		return StoredMessage{}, err
	}
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := StoredMessage{
		ID:       s.nextID,
		User:     in.User,
		Text:     in.Text,
		RoomName: in.RoomName,
		Show:     !in.Hidden,
		Time:     time.UnixMilli(in.Now.UnixMilli()).UTC(),
	}

	list := append(s.msgs[in.RoomName], msg)
	// Bound memory to avoid unbounded growth in dev.
	if len(list) > memMaxMessagesPerRoom {
		list = list[len(list)-memMaxMessagesPerRoom:]
	}
	s.msgs[in.RoomName] = list

	return msg, nil
}

// FetchHistory returns the newest visible messages after AfterID in ascending id order.
func (s *InMemoryStore) FetchHistory(ctx context.Context, in FetchHistoryInput) ([]StoredMessage, error) {
	in, err := normalizeFetch(in)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StoredMessage, 0, min(in.Latest, len(s.msgs[in.RoomName])))
	for _, m := range s.msgs[in.RoomName] {
		if m.ID > in.AfterID && m.Show {
			out = append(out, m)
		}
	}
	if len(out) > in.Latest {
		out = out[len(out)-in.Latest:]
	}
	return out, nil
}
