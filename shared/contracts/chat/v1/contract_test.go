package v1

import (
	"encoding/json"
	"testing"
)

func TestDecodeHeader(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		want    Type
		wantErr bool
	}{
		{name: "known", in: `{"type":"ENTER_ROOM","name":"lobby"}`, want: TypeEnterRoom},
		{name: "padded", in: `{"type":" LOGIN "}`, want: TypeLogin},
		{name: "missing", in: `{"name":"lobby"}`, wantErr: true},
		{name: "unknown", in: `{"type":"DROP_TABLE"}`, wantErr: true},
		{name: "server only", in: `{"type":"MESSAGE"}`, wantErr: true},
		{name: "bad json", in: `{"type":`, wantErr: true},
		{name: "wrong kind", in: `{"type":7}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeHeader([]byte(tc.in))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got type %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("type=%q want %q", got, tc.want)
			}
		})
	}
}

func TestMessageBroadcast_FlatShape(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(MessageBroadcast{
		Type:    TypeMessage,
		Message: Message{ID: 7, User: "ann", Text: "hi", Time: 1700000000000},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"type", "id", "user", "text", "time"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %q in %s", k, b)
		}
	}
	if m["type"] != "MESSAGE" {
		t.Fatalf("type=%v", m["type"])
	}
}
