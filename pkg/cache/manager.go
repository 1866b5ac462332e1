package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Config holds cache manager configuration.
type Config struct {
	// MaxEntries bounds the number of entries, evicting the least recently
	// used one when full. Zero or negative means unbounded.
	MaxEntries int

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// store is the keyed storage behind the manager. Callers hold Manager.mu.
type store[V any] interface {
	Get(key string) (*CacheEntry[V], bool)
	Add(key string, entry *CacheEntry[V]) (evicted bool)
	Remove(key string) bool
	Len() int
	Purge()
}

// Manager is a concurrency-safe response cache with lazy TTL expiration.
// A single Manager is meant to be created at startup and shared by every
// handler serving listing queries.
type Manager[V any] struct {
	mu      sync.Mutex
	entries store[V]
	now     func() time.Time
}

// NewManager creates a cache manager.
func NewManager[V any](cfg Config) (*Manager[V], error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var entries store[V]
	if cfg.MaxEntries > 0 {
		lru, err := simplelru.NewLRU[string, *CacheEntry[V]](cfg.MaxEntries, nil)
		if err != nil {
			return nil, fmt.Errorf("create lru: %w", err)
		}
		entries = lru
	} else {
		entries = make(mapStore[V])
	}

	return &Manager[V]{
		entries: entries,
		now:     now,
	}, nil
}

// Get returns the value stored under key if it is younger than TTL.
// A stale entry is removed as part of the lookup and reported as absent.
func (m *Manager[V]) Get(key CacheKey) (V, bool) {
	var zero V
	cacheKey := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries.Get(cacheKey)
	if !ok {
		CacheMisses.WithLabelValues("absent").Inc()
		return zero, false
	}

	if entry.IsExpired(m.now()) {
		m.entries.Remove(cacheKey)
		CacheEntries.Dec()
		CacheEvictions.WithLabelValues("expired").Inc()
		CacheMisses.WithLabelValues("expired").Inc()
		return zero, false
	}

	CacheHits.Inc()
	return entry.Value, true
}

// Put stores value under key stamped with the current time, replacing any
// previous value and timestamp.
func (m *Manager[V]) Put(key CacheKey, value V) {
	cacheKey := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.entries.Len()
	if evicted := m.entries.Add(cacheKey, &CacheEntry[V]{Value: value, StoredAt: m.now()}); evicted {
		CacheEvictions.WithLabelValues("capacity").Inc()
	}
	CacheEntries.Add(float64(m.entries.Len() - before))
}

// Delete removes the entry for key, if any.
func (m *Manager[V]) Delete(key CacheKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries.Remove(key.String()) {
		CacheEntries.Dec()
	}
}

// Len returns the number of entries held, including stale entries that no
// lookup has evicted yet.
func (m *Manager[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Purge removes every entry.
func (m *Manager[V]) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	CacheEntries.Sub(float64(m.entries.Len()))
	m.entries.Purge()
}

// mapStore is the unbounded store.
type mapStore[V any] map[string]*CacheEntry[V]

func (s mapStore[V]) Get(key string) (*CacheEntry[V], bool) {
	e, ok := s[key]
	return e, ok
}

func (s mapStore[V]) Add(key string, entry *CacheEntry[V]) bool {
	s[key] = entry
	return false
}

func (s mapStore[V]) Remove(key string) bool {
	if _, ok := s[key]; !ok {
		return false
	}
	delete(s, key)
	return true
}

func (s mapStore[V]) Len() int {
	return len(s)
}

func (s mapStore[V]) Purge() {
	for k := range s {
		delete(s, k)
	}
}
