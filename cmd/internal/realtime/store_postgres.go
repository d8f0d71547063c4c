package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
//   - Room creation relies on UNIQUE(name) + ON CONFLICT DO NOTHING, so racing
//     creators converge on one row.
//   - Message ids come from a BIGSERIAL column.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "public").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// EnsureRoom inserts the room row unless it exists and returns it.
func (s *PostgresStore) EnsureRoom(ctx context.Context, name string, now time.Time) (RoomRecord, bool, error) {
	if name == "" {
		return RoomRecord{}, false, invalidInput("missing room name")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	rooms := pgIdent(s.schema, "rooms")

	var (
		id      int64
		created int64
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+rooms+` (name, created) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id, created`,
		name, now.UnixMilli(),
	).Scan(&id, &created)
	switch {
	case err == nil:
		return RoomRecord{ID: id, Name: name, Created: time.UnixMilli(created).UTC()}, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return RoomRecord{}, false, fmt.Errorf("insert room: %w", err)
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT id, created FROM `+rooms+` WHERE name = $1`,
		name,
	).Scan(&id, &created); err != nil {
		return RoomRecord{}, false, fmt.Errorf("select room: %w", err)
	}
	return RoomRecord{ID: id, Name: name, Created: time.UnixMilli(created).UTC()}, false, nil
}

// AppendMessage inserts a message and returns it with its assigned id.
func (s *PostgresStore) AppendMessage(ctx context.Context, in AppendMessageInput) (StoredMessage, error) {
	in, err := validateAppend(in)
	if err != nil {
		return StoredMessage{}, err
	}
	ms := in.Now.UnixMilli()

	var id int64
	if err := s.pool.QueryRow(ctx,
		`INSERT INTO `+pgIdent(s.schema, "messages")+` ("user", text, room_name, show, time)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		in.User, in.Text, in.RoomName, !in.Hidden, ms,
	).Scan(&id); err != nil {
		return StoredMessage{}, fmt.Errorf("insert message: %w", err)
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
func (s *PostgresStore) FetchHistory(ctx context.Context, in FetchHistoryInput) ([]StoredMessage, error) {
	in, err := normalizeFetch(in)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, "user", text, room_name, show, time FROM (
		     SELECT id, "user", text, room_name, show, time
		       FROM `+pgIdent(s.schema, "messages")+`
		      WHERE room_name = $1 AND id > $2 AND show
		      ORDER BY id DESC
		      LIMIT $3
		 ) AS recent
		 ORDER BY id ASC`,
		in.RoomName, in.AfterID, in.Latest,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
