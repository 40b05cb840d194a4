package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// AdminTokenBytes is the entropy of a generated admin token
const AdminTokenBytes = 32

// GenerateToken returns a random URL-safe admin token
func GenerateToken() (string, error) {
	b := make([]byte, AdminTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenEqual compares a presented admin token with the configured one in
// constant time. Both sides are hashed first so the comparison does not
// leak the configured token's length.
func TokenEqual(presented, expected string) bool {
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
