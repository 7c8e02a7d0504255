package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// idBytes is the entropy behind session ids and bearer tokens: 128 bits,
// rendered URL-safe without padding.
const idBytes = 16

func randomToken() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewID returns a fresh session identifier.
func NewID() (string, error) {
	return randomToken()
}

// NewToken returns a fresh opaque bearer token.
func NewToken() (string, error) {
	return randomToken()
}
