package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushToken(t *testing.T) {
	cases := []struct {
		name  string
		in    []string
		limit int
		want  []string
	}{
		{name: "empty", in: nil, limit: 3, want: []string{"x"}},
		{name: "under limit", in: []string{"a", "b"}, limit: 3, want: []string{"a", "b", "x"}},
		{name: "at limit evicts oldest", in: []string{"a", "b", "c"}, limit: 3, want: []string{"b", "c", "x"}},
		{name: "over limit trims to limit", in: []string{"a", "b", "c", "d"}, limit: 3, want: []string{"c", "d", "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pushToken(tc.in, "x", tc.limit))
		})
	}
}

func TestTakeToken(t *testing.T) {
	rest, ok := takeToken([]string{"a", "b", "c"}, "b")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, rest)

	rest, ok = takeToken([]string{"a", "c"}, "z")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "c"}, rest)

	_, ok = takeToken(nil, "z")
	assert.False(t, ok)
}
