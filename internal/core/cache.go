// Package core holds the storage contracts and the typed cache wrappers shared
// by the authentication services.
package core

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetAndDelete atomically reads and removes a key.
	// Returns nil if the key doesn't exist or has expired.
	GetAndDelete(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndDelete atomically removes a key only if its value equals expected.
	// Returns true if the key was removed.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// SetIfExists atomically replaces a key only if it already exists.
	// Returns true if the key was replaced, false if it was absent.
	SetIfExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}
