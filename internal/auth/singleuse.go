package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const opaqueTokenBytes = 32

// NewOpaqueToken returns a cryptographically random hex string used as a
// refresh, password-reset, or email-verification token value.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest stored in place of the raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
