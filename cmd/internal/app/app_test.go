package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		HTTPAddr:        "127.0.0.1:0",
		LogLevel:        "error",
		LogFormat:       "json",
		LogColor:        "never",
		DBSchema:        "public",
		DBMaxConns:      4,
		SQLitePath:      "roomchat.db",
		ShutdownTimeout: 5 * time.Second,
	}
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	return a
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestApp_HTTPSurface(t *testing.T) {
	a := newTestApp(t, testConfig())
	t.Cleanup(a.stores.Close)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, _ = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "roomchat_connections")
	assert.Contains(t, body, "go_goroutines")

	code, _ = get(t, srv.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestApp_ReadyzRequiresDB(t *testing.T) {
	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	a := newTestApp(t, cfg)
	t.Cleanup(a.stores.Close)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestApp_SQLiteChatOverWebSocket(t *testing.T) {
	cfg := testConfig()
	cfg.Store = StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "data", "chat.db")
	cfg.ReadinessRequireDB = true

	a := newTestApp(t, cfg)
	t.Cleanup(a.stores.Close)
	require.Equal(t, StoreSQLite, a.stores.driver)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	code, _ := get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{
		Subprotocols: []string{"roomchat.v1"},
		HTTPHeader:   http.Header{"Origin": []string{srv.URL}},
	})
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	send := func(frame string) map[string]any {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	}

	assert.Equal(t, true, send(`{"type":"CHECK_USERNAME","name":"ann"}`)["available"])

	entered := send(`{"type":"ENTER_ROOM","name":"lobby"}`)
	assert.Equal(t, true, entered["accepted"])
	assert.Equal(t, "lobby", entered["room"])

	// The room row is persisted in SQLite.
	rec, created, err := a.stores.messages.EnsureRoom(ctx, "lobby", time.Now())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Positive(t, rec.ID)
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	a := newTestApp(t, testConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Store = "redis"
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}
