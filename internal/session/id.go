package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateID returns prefix followed by 128 random bits in URL-safe base64.
func GenerateID(prefix string) string {
	b := make([]byte, 16) // 128 bits
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b)
}

// generateSecureID creates a session ID prefixed with "sess_".
func generateSecureID() string {
	return GenerateID("sess_")
}
