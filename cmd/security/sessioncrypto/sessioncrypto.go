// Package sessioncrypto implements the per-connection symmetric cipher used to
// protect credential fields (email, name, password, token) inside chat requests.
//
// Each connection negotiates a random AES-256 key and CBC IV. Clients send
// credential fields as hex-encoded AES-CBC ciphertext with PKCS#7 padding.
package sessioncrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// KeySize selects AES-256.
	KeySize = 32
	// IVSize is the AES block size.
	IVSize = aes.BlockSize
)

var (
	ErrInvalidKey        = errors.New("sessioncrypto: invalid key or iv size")
	ErrInvalidCiphertext = errors.New("sessioncrypto: invalid ciphertext")
	ErrInvalidPadding    = errors.New("sessioncrypto: invalid padding")
)

// Session is one connection's negotiated key material. It is immutable.
type Session struct {
	key []byte
	iv  []byte
}

// New returns a Session with fresh random key and IV.
func New() (*Session, error) {
	key := make([]byte, KeySize)
	iv := make([]byte, IVSize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("sessioncrypto: key: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("sessioncrypto: iv: %w", err)
	}
	return &Session{key: key, iv: iv}, nil
}

// FromHex rebuilds a Session from hex key and IV, as a client does after KEY_IV.
func FromHex(keyHex, ivHex string) (*Session, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, ErrInvalidKey
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, ErrInvalidKey
	}
	if len(key) != KeySize || len(iv) != IVSize {
		return nil, ErrInvalidKey
	}
	return &Session{key: key, iv: iv}, nil
}

// KeyHex returns the key as lowercase hex.
func (s *Session) KeyHex() string { return hex.EncodeToString(s.key) }

// IVHex returns the IV as lowercase hex.
func (s *Session) IVHex() string { return hex.EncodeToString(s.iv) }

// EncryptHex encrypts plaintext and returns hex ciphertext.
func (s *Session) EncryptHex(plaintext string) (string, error) {
	ct, err := Encrypt([]byte(plaintext), s.key, s.iv)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}

// DecryptHex decodes hex ciphertext and returns the plaintext string.
func (s *Session) DecryptHex(ciphertextHex string) (string, error) {
	ct, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	pt, err := Decrypt(ct, s.key, s.iv)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Encrypt performs AES-CBC encryption with PKCS#7 padding.
func Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt performs AES-CBC decryption and strips PKCS#7 padding.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad(out, aes.BlockSize)
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(key) != KeySize || len(iv) != IVSize {
		return nil, ErrInvalidKey
	}
	return aes.NewCipher(key)
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
