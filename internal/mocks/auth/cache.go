package auth

// Package auth contains hand-written test doubles for the storage contracts and
// credential ports. They are lightweight and suitable for unit tests without codegen.

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/uninbox/authd/internal/core"
)

var _ core.CacheRepository = (*MemoryCache)(nil)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-memory CacheRepository with passive TTL expiry driven
// by an injectable clock.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	// Now drives expiry; defaults to time.Now.
	Now func() time.Time
	// Err, when set, is returned by every operation to simulate an outage.
	Err error

	gets int
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

func (m *MemoryCache) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// lookup returns the live entry for key, dropping it when expired. Callers hold mu.
func (m *MemoryCache) lookup(key string) (cacheEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return cacheEntry{}, false
	}
	return e, true
}

func (m *MemoryCache) put(key string, value []byte, ttl time.Duration) {
	e := cacheEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.Err != nil {
		return m.Err
	}
	if key == "" {
		return errors.New("key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, value, ttl)
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	e, ok := m.lookup(key)
	if !ok {
		return nil, nil
	}
	return bytes.Clone(e.value), nil
}

func (m *MemoryCache) GetAndDelete(_ context.Context, key string) ([]byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok {
		return nil, nil
	}
	delete(m.entries, key)
	return e.value, nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	delete(m.entries, key)
	return ok, nil
}

func (m *MemoryCache) SetIfNotExists(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *MemoryCache) SetIfExists(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(key); !ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *MemoryCache) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok || !bytes.Equal(e.value, expected) {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *MemoryCache) Health(context.Context) error { return m.Err }

// TTL returns the remaining lifetime of key; ok is false when absent.
// A zero duration with ok=true means the key does not expire.
func (m *MemoryCache) TTL(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok {
		return 0, false
	}
	if e.expiresAt.IsZero() {
		return 0, true
	}
	return e.expiresAt.Sub(m.now()), true
}

// Keys returns the live keys in sorted order.
func (m *MemoryCache) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		if _, ok := m.lookup(k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Gets returns how many Get calls were served.
func (m *MemoryCache) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}
