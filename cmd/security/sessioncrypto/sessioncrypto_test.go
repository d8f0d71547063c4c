package sessioncrypto

import (
	"crypto/aes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_RoundTrip(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	assert.Len(t, s.KeyHex(), KeySize*2)
	assert.Len(t, s.IVHex(), IVSize*2)

	for _, in := range []string{"", "a", "exactly16bytes!!", "ann@example.com", strings.Repeat("ü", 40)} {
		ct, err := s.EncryptHex(in)
		require.NoError(t, err)

		_, err = hex.DecodeString(ct)
		require.NoError(t, err)

		out, err := s.DecryptHex(ct)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestFromHex_MatchesServerSession(t *testing.T) {
	server, err := New()
	require.NoError(t, err)

	client, err := FromHex(server.KeyHex(), server.IVHex())
	require.NoError(t, err)

	ct, err := client.EncryptHex("secret password")
	require.NoError(t, err)

	pt, err := server.DecryptHex(ct)
	require.NoError(t, err)
	assert.Equal(t, "secret password", pt)
}

func TestFromHex_RejectsBadMaterial(t *testing.T) {
	_, err := FromHex("zz", "00")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = FromHex(strings.Repeat("00", 16), strings.Repeat("00", 16))
	assert.ErrorIs(t, err, ErrInvalidKey, "AES-128 key is refused")
}

func TestDecrypt_RejectsGarbage(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.DecryptHex("not hex")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = s.DecryptHex("abcd")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = s.DecryptHex("")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecrypt_WrongKeyFailsPadding(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := FromHex(strings.Repeat("11", KeySize), a.IVHex())
	require.NoError(t, err)

	// Under another key the padding is almost always invalid; a lucky valid pad
	// still yields a different plaintext.
	ct, err := a.EncryptHex("hello world")
	require.NoError(t, err)

	pt, err := b.DecryptHex(ct)
	if err == nil {
		assert.NotEqual(t, "hello world", pt)
	} else {
		assert.ErrorIs(t, err, ErrInvalidPadding)
	}
}

func TestUnpad(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want []byte
		err  error
	}{
		{name: "full block", in: append([]byte("0123456789abcdef"), bytesOf(16, 16)...), want: []byte("0123456789abcdef")},
		{name: "one byte", in: append([]byte("0123456789abcde"), 1), want: []byte("0123456789abcde")},
		{name: "zero pad", in: append([]byte("0123456789abcde"), 0), err: ErrInvalidPadding},
		{name: "too large", in: append([]byte("0123456789abcde"), 17), err: ErrInvalidPadding},
		{name: "inconsistent", in: append([]byte("0123456789abcd"), 3, 2), err: ErrInvalidPadding},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := unpad(tc.in, aes.BlockSize)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
