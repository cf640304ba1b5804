package repo

import (
	"context"
	"time"
)

// =====================================
// Key-Value Store Interface
// =====================================

// KeyValueStore is the storage behind caching repositories.
type KeyValueStore interface {
	// Get returns the value stored at key.
	// Returns ErrorTypeNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A zero ttl keeps the key until it is deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr atomically increments the integer at key and returns the new value.
	// A missing key counts as 0.
	Incr(ctx context.Context, key string) (int64, error)

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
}
