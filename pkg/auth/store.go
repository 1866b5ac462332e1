package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token is a bearer credential and the instant it stops being accepted.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the token can still be used at now, keeping
// margin of headroom before the real expiry.
func (t Token) ValidAt(now time.Time, margin time.Duration) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// Store keeps the current token between requests.
type Store interface {
	// Load returns the stored token; ok is false when none is stored.
	Load(ctx context.Context) (tok Token, ok bool, err error)
	// Save replaces the stored token.
	Save(ctx context.Context, tok Token) error
	// Clear drops the stored token.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	tok Token
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tok, s.tok.AccessToken != "", nil
}

func (s *MemoryStore) Save(_ context.Context, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = Token{}
	return nil
}

// RedisKeyPrefix prefixes the per-client token key.
const RedisKeyPrefix = "catalog:oauth:token:"

// RedisStore shares the token between proxy replicas through Redis.
// The key expires together with the token.
type RedisStore struct {
	redis *redis.Client
	key   string
	now   func() time.Time
}

// NewRedisStore creates a store keyed by the OAuth2 client id.
func NewRedisStore(redisClient *redis.Client, clientID string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		key:   RedisKeyPrefix + clientID,
		now:   time.Now,
	}
}

func (s *RedisStore) Load(ctx context.Context) (Token, bool, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Token{}, false, nil
		}
		return Token{}, false, fmt.Errorf("redis get: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return tok, tok.AccessToken != "", nil
}

func (s *RedisStore) Save(ctx context.Context, tok Token) error {
	ttl := tok.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
