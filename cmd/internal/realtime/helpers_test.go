package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"roomchat/cmd/identity"
	"roomchat/cmd/internal/auth"
	"roomchat/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn records every frame sent to it. When gate is set, Send blocks
// until the gate is closed or the send deadline expires.
type fakeConn struct {
	id   string
	gate chan struct{}

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(ctx context.Context, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.frames = append(f.frames, b)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// ofType returns the decoded frames carrying the given type tag, in arrival order.
func (f *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []map[string]any
	for _, b := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// last returns the newest frame of the given type and fails when there is none.
func (f *fakeConn) last(t *testing.T, typ string) map[string]any {
	t.Helper()
	frames := f.ofType(t, typ)
	require.NotEmpty(t, frames, "no %s frame received", typ)
	return frames[len(frames)-1]
}

type testEnv struct {
	store   *InMemoryStore
	users   *identity.InMemoryStore
	limiter *SendLimiter
	metrics *Metrics
	auth    *auth.Service
	rooms   *Rooms
	conns   *Connections
	router  *Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := discardLogger()
	env := &testEnv{
		store:   NewInMemoryStore(),
		users:   identity.NewInMemoryStore(),
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	env.limiter = NewSendLimiter(10, 2*time.Second, env.metrics)

	hasher := password.DefaultConfig()
	hasher.Params.MemoryKiB = 8 * 1024
	hasher.Params.Iterations = 1
	hasher.Params.Parallelism = 1

	authSvc, err := auth.NewService(auth.DefaultConfig(), log, env.users, hasher)
	require.NoError(t, err)
	env.auth = authSvc

	env.rooms, err = NewRooms(log, RoomsConfig{Store: env.store, Limiter: env.limiter, Metrics: env.metrics})
	require.NoError(t, err)

	env.conns = NewConnections(log, env.rooms, env.metrics)

	env.router, err = NewRouter(log, RouterConfig{
		Connections: env.conns,
		Rooms:       env.rooms,
		Store:       env.store,
		Auth:        authSvc,
		Limiter:     env.limiter,
		Metrics:     env.metrics,
	})
	require.NoError(t, err)

	return env
}

func (e *testEnv) connect(t *testing.T, id string) (*fakeConn, *Client) {
	t.Helper()
	fc := newFakeConn(id)
	c, err := e.conns.Open(fc)
	require.NoError(t, err)
	return fc, c
}

// request encodes msg, dispatches it and waits for any broadcast it caused.
func (e *testEnv) request(t *testing.T, c *Client, msg any) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	e.router.Handle(context.Background(), c.ID(), b)
	e.limiter.Wait()
}

func (e *testEnv) raw(t *testing.T, c *Client, frame string) {
	t.Helper()
	e.router.Handle(context.Background(), c.ID(), []byte(frame))
	e.limiter.Wait()
}

// enc encrypts a credential field with the client's negotiated session key.
func enc(t *testing.T, c *Client, plain string) string {
	t.Helper()
	cipher := c.Cipher()
	require.NotNil(t, cipher, "KEY_IV not negotiated")
	out, err := cipher.EncryptHex(plain)
	require.NoError(t, err)
	return out
}
