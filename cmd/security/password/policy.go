package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// trivialPasswords are refused at REGISTER regardless of length.
var trivialPasswords = map[string]struct{}{
	"password":    {},
	"password123": {},
	"123456":      {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"11111111":    {},
	"letmein":     {},
	"roomchat":    {},
	"chatroom":    {},
}

// Validate applies the registration policy to a decrypted password.
// Length is counted in runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && looksVeryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

// looksVeryWeak catches one repeated character, short PIN-like digit runs
// and a small list of trivial choices.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	_, size := utf8.DecodeRuneInString(s)
	if strings.Count(s, s[:size]) == utf8.RuneCountInString(s) {
		return true
	}
	if strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 &&
		utf8.RuneCountInString(s) < 12 {
		return true
	}
	_, trivial := trivialPasswords[strings.ToLower(s)]
	return trivial
}
