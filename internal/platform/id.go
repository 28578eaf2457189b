// Package platform holds small helpers shared across the billing worker.
package platform

import (
	"crypto/rand"

	"github.com/google/uuid"
)

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength   = 10
)

// NewID returns a random UUID for ledger entries and event envelopes.
func NewID() string {
	return uuid.New().String()
}

// NewShortID returns prefix followed by a random lowercase token, for IDs
// that end up in log lines.
func NewShortID(prefix string) string {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		panic("platform: read random token: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return prefix + string(buf)
}
