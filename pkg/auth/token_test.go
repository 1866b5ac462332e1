package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer counts grants and answers with sequential tokens.
func tokenServer(t *testing.T, expiresIn int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" ||
			r.PostForm.Get("client_id") != "id" ||
			r.PostForm.Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, n, expiresIn)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestSource(t *testing.T, url string, store Store) *TokenSource {
	t.Helper()

	src, err := NewTokenSource(Config{TokenURL: url, ClientID: "id", ClientSecret: "secret"}, store, nil)
	require.NoError(t, err)
	return src
}

func TestNewTokenSource_Validation(t *testing.T) {
	_, err := NewTokenSource(Config{ClientID: "id", ClientSecret: "secret"}, nil, nil)
	assert.EqualError(t, err, "token url is required")

	_, err = NewTokenSource(Config{TokenURL: "http://sso.local"}, nil, nil)
	assert.EqualError(t, err, "client id and secret are required")
}

func TestFetchToken_ReusesValidToken(t *testing.T) {
	srv, calls := tokenServer(t, 3600)
	src := newTestSource(t, srv.URL, nil)
	ctx := context.Background()

	first, err := src.FetchToken(ctx)
	require.NoError(t, err)
	second, err := src.FetchToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchToken_RefreshesNearExpiry(t *testing.T) {
	srv, calls := tokenServer(t, 60)
	src := newTestSource(t, srv.URL, nil)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	_, err := src.FetchToken(ctx)
	require.NoError(t, err)

	now = now.Add(29 * time.Second)
	tok, err := src.FetchToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Inside the refresh margin.
	now = now.Add(2 * time.Second)
	tok, err = src.FetchToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetchToken_DefaultExpiry(t *testing.T) {
	srv, _ := tokenServer(t, 0)
	store := NewMemoryStore()
	src := newTestSource(t, srv.URL, store)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	_, err := src.FetchToken(context.Background())
	require.NoError(t, err)

	tok, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.Add(DefaultExpiresIn), tok.ExpiresAt)
}

func TestFetchToken_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "invalid_client", http.StatusUnauthorized)
			},
		},
		{
			name: "empty token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"access_token":""}`)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<html>`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src := newTestSource(t, srv.URL, nil)
			tok, err := src.FetchToken(context.Background())

			assert.Empty(t, tok)
			assert.ErrorIs(t, err, ErrTokenUnavailable)
		})
	}
}

func TestFetchToken_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	src := newTestSource(t, url, nil)
	_, err := src.FetchToken(context.Background())
	assert.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestFetchToken_ConcurrentCallersShareRefresh(t *testing.T) {
	srv, calls := tokenServer(t, 3600)
	src := newTestSource(t, srv.URL, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := src.FetchToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", tok)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestInvalidate(t *testing.T) {
	srv, calls := tokenServer(t, 3600)
	src := newTestSource(t, srv.URL, nil)
	ctx := context.Background()

	_, err := src.FetchToken(ctx)
	require.NoError(t, err)
	require.NoError(t, src.Invalidate(ctx))

	tok, err := src.FetchToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.EqualValues(t, 2, calls.Load())
}

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb, "id"), mr
}

func TestRedisStore_SaveLoadClear(t *testing.T) {
	store, mr := newMiniredisStore(t)
	ctx := context.Background()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	tok := Token{AccessToken: "abc", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	require.NoError(t, store.Save(ctx, tok))

	assert.True(t, mr.Exists(RedisKeyPrefix+"id"))
	ttl := mr.TTL(RedisKeyPrefix + "id")
	assert.Greater(t, ttl, 59*time.Minute)

	loaded, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tok.AccessToken, loaded.AccessToken)
	assert.True(t, tok.ExpiresAt.Equal(loaded.ExpiresAt))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists(RedisKeyPrefix+"id"))
}

func TestRedisStore_ExpiredTokenNotSaved(t *testing.T) {
	store, mr := newMiniredisStore(t)

	err := store.Save(context.Background(), Token{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	assert.False(t, mr.Exists(RedisKeyPrefix+"id"))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := newMiniredisStore(t)
	require.NoError(t, mr.Set(RedisKeyPrefix+"id", "not-json"))

	_, _, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSource_SharedThroughRedis(t *testing.T) {
	srv, calls := tokenServer(t, 3600)
	store, _ := newMiniredisStore(t)

	replicaA := newTestSource(t, srv.URL, store)
	replicaB := newTestSource(t, srv.URL, store)

	tokA, err := replicaA.FetchToken(context.Background())
	require.NoError(t, err)
	tokB, err := replicaB.FetchToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, tokA, tokB)
	assert.EqualValues(t, 1, calls.Load())
}

func TestTokenSource_RedisDownFallsBackToFetch(t *testing.T) {
	srv, _ := tokenServer(t, 3600)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisStore(rdb, "id")

	// Simulate Redis going away.
	mr.Close()

	src := newTestSource(t, srv.URL, store)
	tok, err := src.FetchToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestNewRedisStore_Panic(t *testing.T) {
	assert.Panics(t, func() { NewRedisStore(nil, "id") })
}
