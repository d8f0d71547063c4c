package password

import (
	"bytes"
	"testing"
)

// testConfig keeps argon2 cheap so the suite stays fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

// userSalt mirrors the 32-character salt stored on each user row.
var userSalt = []byte("Qm7xT2vLp9Zk4Rw8Nb3Yc6Hd1Fs5Jg0A")

func TestHashAndVerify_OK(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.HashWithSalt("this is a strong password 123!", userSalt)
	if err != nil {
		t.Fatalf("HashWithSalt error: %v", err)
	}

	ok, err := cfg.Verify(h, "this is a strong password 123!")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.HashWithSalt("this is a strong password 123!", userSalt)
	if err != nil {
		t.Fatalf("HashWithSalt error: %v", err)
	}

	ok, err := cfg.Verify(h, "wrong password")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHashWithSalt_DeterministicAndSaltEmbedded(t *testing.T) {
	cfg := testConfig()
	salt := []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ012345")

	a, err := cfg.HashWithSalt("correct horse battery", salt)
	if err != nil {
		t.Fatalf("HashWithSalt: %v", err)
	}
	b, err := cfg.HashWithSalt("correct horse battery", salt)
	if err != nil {
		t.Fatalf("HashWithSalt: %v", err)
	}
	if a != b {
		t.Fatalf("same password+salt must hash identically")
	}

	got, err := SaltOf(a)
	if err != nil {
		t.Fatalf("SaltOf: %v", err)
	}
	if !bytes.Equal(got, salt) {
		t.Fatalf("embedded salt mismatch: %q", got)
	}

	other, err := cfg.HashWithSalt("correct horse battery", []byte("ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ"))
	if err != nil {
		t.Fatalf("HashWithSalt: %v", err)
	}
	if other == a {
		t.Fatalf("different salt must change the hash")
	}
}

func TestHashWithSalt_RejectsBadSalt(t *testing.T) {
	cfg := testConfig()

	if _, err := cfg.HashWithSalt("correct horse battery", []byte("short")); err != ErrInvalidSalt {
		t.Fatalf("expected ErrInvalidSalt, got %v", err)
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := testConfig()

	for _, in := range []string{"not-a-hash", "$argon2i$v=19$m=1,t=1,p=1$AA$AA", "$argon2id$v=18$m=1,t=1,p=1$AA$AA"} {
		ok, err := cfg.Verify(in, "whatever")
		if err != ErrInvalidHash {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", in, err)
		}
		if ok {
			t.Fatalf("expected false")
		}
	}
}

func TestVerify_RefusesOversizedParams(t *testing.T) {
	cheap := testConfig()
	h, err := DefaultConfig().HashWithSalt("correct horse battery", []byte("ABCDEFGHIJKLMNOP"))
	if err != nil {
		t.Fatalf("HashWithSalt: %v", err)
	}

	if _, err := cheap.Verify(h, "correct horse battery"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash for params above bounds, got %v", err)
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 8

	if err := cfg.Validate("password"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := cfg.Validate("11111111"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	for _, pw := range []string{"RoomChat", "zzzzzzzzzz", "0123456789"} {
		if err := cfg.Validate(pw); err != ErrWeakPassword {
			t.Fatalf("Validate(%q): expected ErrWeakPassword, got %v", pw, err)
		}
	}
	if err := cfg.Validate("123456789012"); err != nil {
		t.Fatalf("long digit run: expected ok, got %v", err)
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
