package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// HashAuthenticator accepts keys matching one of a fixed set of bcrypt
// hashes, typically taken from configuration.
type HashAuthenticator struct {
	hashes [][]byte
	cache  *AuthCache
}

// NewHashAuthenticator checks that every hash is a bcrypt hash.
func NewHashAuthenticator(hashes []string, cacheTTL time.Duration) (*HashAuthenticator, error) {
	if len(hashes) == 0 {
		return nil, fmt.Errorf("no API key hashes configured")
	}
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	a := &HashAuthenticator{cache: NewAuthCache(cacheTTL)}
	for i, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("API key hash #%d: %w", i+1, err)
		}
		a.hashes = append(a.hashes, []byte(h))
	}
	return a, nil
}

func (a *HashAuthenticator) Authenticate(_ context.Context, token string) (*Principal, error) {
	if r := a.cache.Get(token); r.Hit && !r.NeedsRefresh {
		return r.Principal, nil
	}
	// The hash set is static, so a stale entry is simply re-verified inline.
	for i, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			p := &Principal{KeyID: KeyID(token), Name: fmt.Sprintf("key-%d", i+1)}
			a.cache.Set(token, p)
			return p, nil
		}
	}
	a.cache.Delete(token)
	return nil, ErrUnauthenticated
}
