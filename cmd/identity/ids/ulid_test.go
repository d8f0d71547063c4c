package ids

import (
	"testing"
	"time"
)

func TestNewULID(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	a, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	b, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	if len(a) != 26 || !IsULID(a) {
		t.Fatalf("not a ULID: %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids for the same instant")
	}

	z, err := NewULID(time.Time{})
	if err != nil || !IsULID(z) {
		t.Fatalf("zero time: %q %v", z, err)
	}
}

func TestIsULID_Rejects(t *testing.T) {
	for _, s := range []string{"", "conn-1", "01ARZ3NDEKTSV4RRFFQ69G5FA", "01ARZ3NDEKTSV4RRFFQ69G5FAVX"} {
		if IsULID(s) {
			t.Fatalf("IsULID(%q) = true", s)
		}
	}
}
