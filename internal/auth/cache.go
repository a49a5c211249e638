package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache remembers verified keys so bcrypt runs once per key per TTL.
// Entries are indexed by the key's public id and hold only a SHA-256 digest
// of the full key; a different key sharing the id misses. Stale entries are
// still served while one caller refreshes them.
type AuthCache struct {
	store sync.Map // key id -> *cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	digest     [sha256.Size]byte
	principal  *Principal
	expiresAt  time.Time
	refreshing atomic.Bool
}

// AuthCacheGetResult holds the result of a cache lookup.
type AuthCacheGetResult struct {
	Principal    *Principal
	Hit          bool
	NeedsRefresh bool
}

// NewAuthCache creates a cache with the given TTL.
func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl, now: time.Now}
}

// Get looks token up without blocking. Only one caller per stale entry is
// told to refresh.
func (c *AuthCache) Get(token string) AuthCacheGetResult {
	entry, ok := c.lookup(token)
	if !ok {
		return AuthCacheGetResult{}
	}
	if c.now().Before(entry.expiresAt) {
		return AuthCacheGetResult{Principal: entry.principal, Hit: true}
	}
	return AuthCacheGetResult{
		Principal:    entry.principal,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set records token as verified for principal, replacing any entry under
// the same key id.
func (c *AuthCache) Set(token string, principal *Principal) {
	c.store.Store(KeyID(token), &cacheEntry{
		digest:    sha256.Sum256([]byte(token)),
		principal: principal,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Delete drops the entry for token. An entry for another key under the same
// id is left alone.
func (c *AuthCache) Delete(token string) {
	if _, ok := c.lookup(token); ok {
		c.store.Delete(KeyID(token))
	}
}

func (c *AuthCache) lookup(token string) (*cacheEntry, bool) {
	val, ok := c.store.Load(KeyID(token))
	if !ok {
		return nil, false
	}
	entry := val.(*cacheEntry)
	digest := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(entry.digest[:], digest[:]) != 1 {
		return nil, false
	}
	return entry, true
}
