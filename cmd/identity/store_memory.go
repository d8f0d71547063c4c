package identity

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a dev-only Store used when no database is configured.
// A single mutex serializes every operation, which makes UpdateTokens atomic.
type InMemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*User
	byEmail map[string]int64
	byName  map[string]int64
}

// NewInMemoryStore constructs an empty in-memory user store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[int64]*User),
		byEmail: make(map[string]int64),
		byName:  make(map[string]int64),
	}
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// Exists probes the name or email index.
func (s *InMemoryStore) Exists(ctx context.Context, field Field, value string) (bool, error) {
	const op = "identity.Exists"
	if !field.Valid() {
		return false, invalid(op, "unknown field")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	v := probeValue(field, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if field == FieldEmail {
		_, ok := s.byEmail[v]
		return ok, nil
	}
	_, ok := s.byName[v]
	return ok, nil
}

// CreateUser inserts a user with an empty token list.
func (s *InMemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[in.Email]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	if _, ok := s.byName[in.Name]; ok {
		return User{}, ConflictError{Op: op, Field: "name"}
	}

	s.nextID++
	code := in.VerificationCode
	u := &User{
		ID:           s.nextID,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Salt:         in.Salt,
		Registered:   in.Now,
		LastOnline:   in.Now,
		Tokens:       []string{},
	}
	if code != "" {
		u.VerificationCode = &code
	}

	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	s.byName[u.Name] = u.ID

	return snapshotUser(u), nil
}

// GetUserByEmail returns the user registered under email.
func (s *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, userNotFound(op)
	}
	return snapshotUser(s.users[id]), nil
}

// GetUserByID returns the user with the given id.
func (s *InMemoryStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	const op = "identity.GetUserByID"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, userNotFound(op)
	}
	return snapshotUser(u), nil
}

// UpdateTokens applies fn to the user's token list while holding the store lock.
func (s *InMemoryStore) UpdateTokens(ctx context.Context, userID int64, fn TokenUpdateFunc) error {
	const op = "identity.UpdateTokens"
	if fn == nil {
		return invalid(op, "nil update func")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return userNotFound(op)
	}

	next, err := fn(cloneTokens(u.Tokens))
	if err != nil {
		return err
	}
	u.Tokens = cloneTokens(next)
	return nil
}

// TouchLastOnline records a successful login.
func (s *InMemoryStore) TouchLastOnline(ctx context.Context, userID int64, now time.Time) error {
	const op = "identity.TouchLastOnline"
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return userNotFound(op)
	}
	u.LastOnline = now
	return nil
}

// SetVerificationCode replaces or clears the pending verification code.
func (s *InMemoryStore) SetVerificationCode(ctx context.Context, userID int64, code *string) error {
	const op = "identity.SetVerificationCode"
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return userNotFound(op)
	}
	if code == nil {
		u.VerificationCode = nil
		return nil
	}
	c := *code
	u.VerificationCode = &c
	return nil
}

func snapshotUser(u *User) User {
	out := *u
	out.Tokens = cloneTokens(u.Tokens)
	if u.VerificationCode != nil {
		c := *u.VerificationCode
		out.VerificationCode = &c
	}
	return out
}
