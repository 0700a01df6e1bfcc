package store

import (
	"context"
	"crypto/rand"
	"errors"
)

// codeAlphabet omits 0/O/I/1/L to keep codes unambiguous on a TV screen.
const (
	codeAlphabet    = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

// IssueCode draws random codes until it finds one the store does not know.
// It gives up after ten attempts; at normal load that only happens when the
// store itself is failing.
func IssueCode(ctx context.Context, s RoomStore) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := randomCode()
		_, err := s.Get(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return code, nil
		}
		// Occupied, or the store is unhealthy; draw again.
	}
	return "", ErrCodeExhausted
}

func randomCode() string {
	b := make([]byte, codeLength)
	rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[b[i]%byte(len(codeAlphabet))]
	}
	return string(b)
}
