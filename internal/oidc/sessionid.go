package oidc

import (
	crand "crypto/rand"
	"encoding/base64"
	"fmt"
)

// randomBytesLen is the byte length used for session id, state, and nonce
// values.
const randomBytesLen = 32

// SessionIdGenerator produces unguessable session identifiers.
type SessionIdGenerator interface {
	Generate() (string, error)
}

// RandomSessionIdGenerator is the default SessionIdGenerator: 32
// cryptographically random bytes, URL-safe base64 encoded.
type RandomSessionIdGenerator struct{}

// Generate implements SessionIdGenerator.
func (RandomSessionIdGenerator) Generate() (string, error) {
	return randomURLSafeString(randomBytesLen)
}

func randomURLSafeString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := crand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
