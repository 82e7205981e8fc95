// Package auth validates the gateway service key.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// Authenticator validates inbound bearer tokens against the configured
// service key. Only the key's hash is retained.
type Authenticator struct {
	keyHash string
}

// NewAuthenticator creates an authenticator for one service key.
func NewAuthenticator(serviceKey string) *Authenticator {
	return &Authenticator{keyHash: HashKey(serviceKey)}
}

// Validate checks a presented key in constant time.
func (a *Authenticator) Validate(key string) error {
	presented := HashKey(key)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(a.keyHash)) != 1 {
		return fmt.Errorf("invalid service key")
	}
	return nil
}

// ExtractKey pulls the bearer token from the Authorization header.
func ExtractKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	if !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return parts[1], nil
}

// HashKey creates a SHA-256 hash of a key.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
