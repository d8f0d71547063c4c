package app

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	got := stripANSI(in)
	want := "INFO plain ERR"
	if got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("conn_id", "01J0").WithGroup("req").Info("router.drop",
		"type", "ENTER_ROOM",
		"room", "the lobby",
		"err", errors.New("bad frame"),
	)

	line := buf.String()
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=router.drop",
		"conn_id=01J0",
		"req.type=ENTER_ROOM",
		`req.room="the lobby"`,
		`req.err="bad frame"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected color codes in %q", line)
	}
}

func TestPrettyHandler_ColorAndHTTPKeys(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))

	log.Warn("http.request", "method", "get", "status", 404, "status_class", "4xx", "duration_ms", int64(12))

	line := buf.String()
	if !strings.Contains(line, ansiYellow+"[WARN]"+ansiReset) {
		t.Fatalf("warn tag not colorized: %q", line)
	}
	plain := stripANSI(line)
	for _, want := range []string{"method=GET", "status=404", "class=4xx", "duration=12ms"} {
		if !strings.Contains(plain, want) {
			t.Fatalf("missing %q in %q", want, plain)
		}
	}
}

func TestPrettyHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := newPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	if h.Enabled(t.Context(), slog.LevelInfo) {
		t.Fatalf("info enabled at warn level")
	}
	if !h.Enabled(t.Context(), slog.LevelError) {
		t.Fatalf("error disabled at warn level")
	}
}
