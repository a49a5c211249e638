// Package auth verifies bearer API keys on the HTTP transport.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every gateway API key.
const KeyPrefix = "rgk_"

// prefixLen is how much of a key is stored in clear for lookup.
const prefixLen = 12

// Authenticator validates a bearer token and returns who it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// Principal is an authenticated API key.
type Principal struct {
	KeyID string // the key's public prefix
	Name  string
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// ExtractBearerToken extracts an rgk_ API key from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", ErrUnauthenticated
	}
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if !strings.HasPrefix(token, KeyPrefix) || len(token) < prefixLen {
		return "", ErrUnauthenticated
	}
	return token, nil
}

// KeyID returns the public prefix of a key.
func KeyID(token string) string {
	if len(token) < prefixLen {
		return token
	}
	return token[:prefixLen]
}

// GenerateKey creates a new random API key and its bcrypt hash.
func GenerateKey() (key, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	key = KeyPrefix + hex.EncodeToString(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return key, string(h), nil
}
