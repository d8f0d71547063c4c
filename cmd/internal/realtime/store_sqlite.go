package realtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore is a MessageStore backed by SQLite (modernc.org/sqlite driver).
// The *sql.DB is owned by the caller and shared with the user store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a SQLite-backed MessageStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("realtime: nil db")
	}
	return &SQLiteStore{db: db}, nil
}

// Close is a no-op because the db is owned by the caller.
func (s *SQLiteStore) Close() error { return nil }

// EnsureRoom inserts the room row unless it exists and returns it.
func (s *SQLiteStore) EnsureRoom(ctx context.Context, name string, now time.Time) (RoomRecord, bool, error) {
	if name == "" {
		return RoomRecord{}, false, invalidInput("missing room name")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (name, created) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, now.UnixMilli(),
	)
	if err != nil {
		return RoomRecord{}, false, fmt.Errorf("insert room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return RoomRecord{}, false, fmt.Errorf("insert room: %w", err)
	}

	var (
		id      int64
		created int64
	)
	if err := s.db.QueryRowContext(ctx,
		`SELECT id, created FROM rooms WHERE name = ?`,
		name,
	).Scan(&id, &created); err != nil {
		return RoomRecord{}, false, fmt.Errorf("select room: %w", err)
	}
	return RoomRecord{ID: id, Name: name, Created: time.UnixMilli(created).UTC()}, n > 0, nil
}

// AppendMessage inserts a message and returns it with its assigned id.
func (s *SQLiteStore) AppendMessage(ctx context.Context, in AppendMessageInput) (StoredMessage, error) {
	in, err := validateAppend(in)
	if err != nil {
		return StoredMessage{}, err
	}
	ms := in.Now.UnixMilli()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user, text, room_name, show, time) VALUES (?, ?, ?, ?, ?)`,
		in.User, in.Text, in.RoomName, !in.Hidden, ms,
	)
	if err != nil {
		return StoredMessage{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return StoredMessage{}, fmt.Errorf("insert message: last insert id: %w", err)
	}

	return StoredMessage{
		ID:       id,
		User:     in.User,
		Text:     in.Text,
		RoomName: in.RoomName,
		Show:     !in.Hidden,
		Time:     time.UnixMilli(ms).UTC(),
	}, nil
}

// FetchHistory returns the newest visible messages after AfterID in ascending id order.
func (s *SQLiteStore) FetchHistory(ctx context.Context, in FetchHistoryInput) ([]StoredMessage, error) {
	in, err := normalizeFetch(in)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user, text, room_name, show, time FROM (
		     SELECT id, user, text, room_name, show, time
		       FROM messages
		      WHERE room_name = ? AND id > ? AND show = 1
		      ORDER BY id DESC
		      LIMIT ?
		 )
		 ORDER BY id ASC`,
		in.RoomName, in.AfterID, in.Latest,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := make([]StoredMessage, 0, in.Latest)
	for rows.Next() {
		var (
			m  StoredMessage
			ms int64
		)
		if err := rows.Scan(&m.ID, &m.User, &m.Text, &m.RoomName, &m.Show, &ms); err != nil {
			return nil, err
		}
		m.Time = time.UnixMilli(ms).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}
