// Package pkce implements the RFC 7636 Proof Key for Code Exchange pieces of
// the login flow.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Codes pairs a code verifier with its S256 challenge.
type Codes struct {
	Verifier  string
	Challenge string
}

// Generate creates a fresh verifier/challenge pair. The verifier is 32 random
// bytes base64url-encoded (43 characters, within the RFC 7636 bounds); the
// challenge is the base64url-encoded SHA-256 of the verifier.
func Generate() (*Codes, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("pkce: generate verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	digest := sha256.Sum256([]byte(verifier))
	return &Codes{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(digest[:]),
	}, nil
}
