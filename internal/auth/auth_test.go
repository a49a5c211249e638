package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testKey = "rgk_0123456789abcdef"

func mustHash(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		ok     bool
	}{
		{"Bearer " + testKey, true},
		{"bearer " + testKey, true},
		{testKey, true},
		{"", false},
		{"Bearer tsk_0123456789", false},
		{"Bearer rgk_short", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, err := ExtractBearerToken(r)
		if tt.ok {
			require.NoError(t, err, tt.header)
			assert.Equal(t, testKey, token)
		} else {
			assert.ErrorIs(t, err, ErrUnauthenticated, tt.header)
		}
	}
}

func TestGenerateKey(t *testing.T) {
	key, hash, err := GenerateKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)))
	assert.Equal(t, key[:prefixLen], KeyID(key))
}

func TestHashAuthenticator(t *testing.T) {
	a, err := NewHashAuthenticator([]string{mustHash(t, "rgk_other_key_xyz"), mustHash(t, testKey)}, time.Minute)
	require.NoError(t, err)

	p, err := a.Authenticate(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "key-2", p.Name)
	assert.Equal(t, "rgk_01234567", p.KeyID)

	cached, err := a.Authenticate(context.Background(), testKey)
	require.NoError(t, err)
	assert.Same(t, p, cached)

	_, err = a.Authenticate(context.Background(), "rgk_wrong_key_000")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewHashAuthenticator_RejectsBadHashes(t *testing.T) {
	_, err := NewHashAuthenticator(nil, 0)
	require.Error(t, err)

	_, err = NewHashAuthenticator([]string{"not-a-bcrypt-hash"}, 0)
	require.Error(t, err)
}

type countingKeyStore struct {
	row   *keyRow
	err   error
	calls atomic.Int64
}

func (s *countingKeyStore) LookupByPrefix(_ context.Context, _ string) (*keyRow, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.row, nil
}

func TestPostgresAuthenticator_CacheHit(t *testing.T) {
	store := &countingKeyStore{row: &keyRow{Prefix: "rgk_01234567", KeyHash: mustHash(t, testKey), Name: "ops"}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	p, err := a.Authenticate(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "ops", p.Name)

	_, err = a.Authenticate(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.calls.Load())
}

func TestPostgresAuthenticator_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		store *countingKeyStore
	}{
		{"unknown key", &countingKeyStore{err: sql.ErrNoRows}},
		{"db down", &countingKeyStore{err: errors.New("connection refused")}},
		{"hash mismatch", &countingKeyStore{row: &keyRow{Prefix: "rgk_01234567", KeyHash: mustHash(t, "rgk_01234567_other")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewPostgresAuthenticatorWithStore(tt.store, time.Minute, zap.NewNop())
			_, err := a.Authenticate(context.Background(), testKey)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestPostgresAuthenticator_StaleEntryRefreshesInBackground(t *testing.T) {
	store := &countingKeyStore{row: &keyRow{Prefix: "rgk_01234567", KeyHash: mustHash(t, testKey), Name: "ops"}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	now := time.Now()
	a.cache.now = func() time.Time { return now }
	_, err := a.Authenticate(context.Background(), testKey)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	p, err := a.Authenticate(context.Background(), testKey)
	require.NoError(t, err, "stale entries are served while refreshing")
	assert.Equal(t, "ops", p.Name)

	require.Eventually(t, func() bool { return store.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestAuthCache_OnlyOneRefresher(t *testing.T) {
	c := NewAuthCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", &Principal{Name: "a"})
	assert.False(t, c.Get("k").NeedsRefresh)

	now = now.Add(time.Hour)
	first := c.Get("k")
	second := c.Get("k")
	assert.True(t, first.Hit)
	assert.True(t, first.NeedsRefresh)
	assert.False(t, second.NeedsRefresh)

	c.Delete("k")
	assert.False(t, c.Get("k").Hit)
}

func TestAuthCache_KeysSharingIDDoNotCollide(t *testing.T) {
	c := NewAuthCache(time.Minute)
	const sibling = "rgk_01234567_other_suffix"
	require.Equal(t, KeyID(testKey), KeyID(sibling))

	c.Set(testKey, &Principal{Name: "a"})
	assert.False(t, c.Get(sibling).Hit)
	assert.True(t, c.Get(testKey).Hit)

	c.Delete(sibling)
	assert.True(t, c.Get(testKey).Hit, "delete of another key leaves the entry")

	c.Set(sibling, &Principal{Name: "b"})
	assert.False(t, c.Get(testKey).Hit)
	assert.Equal(t, "b", c.Get(sibling).Principal.Name)
}

func TestHashAuthenticator_SiblingKeyNotServedFromCache(t *testing.T) {
	a, err := NewHashAuthenticator([]string{mustHash(t, testKey)}, time.Minute)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), testKey)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), "rgk_01234567_forged")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMiddleware(t *testing.T) {
	a, err := NewHashAuthenticator([]string{mustHash(t, testKey)}, time.Minute)
	require.NoError(t, err)

	var seen *Principal
	h := Middleware(a, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"missing or invalid API key"}`, rec.Body.String())
	assert.Nil(t, seen)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer rgk_wrong_key_000")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "rgk_01234567", seen.KeyID)
}
