package auth

import "roomchat/cmd/security/token"

// pushToken appends digest and evicts the oldest entries beyond limit.
func pushToken(list []string, digest string, limit int) []string {
	out := append(list, digest)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// takeToken removes digest from list. ok is false when digest is absent.
func takeToken(list []string, digest string) (rest []string, ok bool) {
	idx := -1
	for i, d := range list {
		if token.Equal(d, digest) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return list, false
	}
	rest = make([]string, 0, len(list)-1)
	rest = append(rest, list[:idx]...)
	rest = append(rest, list[idx+1:]...)
	return rest, true
}

// newToken returns a fresh plain token and its storage digest.
func newToken() (plain, digest string, err error) {
	plain, err = token.NewSessionToken()
	if err != nil {
		return "", "", err
	}
	return plain, token.HashSessionTokenHex(plain), nil
}
