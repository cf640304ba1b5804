package reporedis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lemmego/repo"
)

// =====================================
// Key-Value Store
// =====================================

// Store implements repo.KeyValueStore on a go-redis client. Any Cmdable
// works: a single node client, a ring or a cluster client.
type Store struct {
	client redis.Cmdable
}

// NewStore wraps client.
func NewStore(client redis.Cmdable) *Store {
	return &Store{client: client}
}

// Get returns the value stored at key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, convertRedisError(err)
	}
	return data, nil
}

// Set stores value at key; a zero ttl never expires
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return convertRedisError(s.client.Set(ctx, key, value, ttl).Err())
}

// Incr increments the counter at key
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, convertRedisError(err)
	}
	return n, nil
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, convertRedisError(err)
	}
	return n, nil
}

// =====================================
// Error Conversion
// =====================================

// convertRedisError converts Redis errors to repo errors
func convertRedisError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repo.Error
	if errors.As(err, &repoErr) {
		return err
	}

	if errors.Is(err, redis.Nil) {
		return repo.NewError(repo.ErrorTypeNotFound, "key not found")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return repo.NewErrorWithCause(repo.ErrorTypeTimeout, "Redis operation timed out", err)
	}

	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return repo.NewErrorWithCause(repo.ErrorTypeValidation, "Redis key holds the wrong kind of value", err)
	case strings.Contains(msg, "not an integer"):
		return repo.NewErrorWithCause(repo.ErrorTypeValidation, "Redis value is not an integer", err)
	case strings.HasPrefix(msg, "NOAUTH"), strings.HasPrefix(msg, "WRONGPASS"),
		strings.Contains(msg, "connection refused"), strings.Contains(msg, "i/o timeout"):
		return repo.NewErrorWithCause(repo.ErrorTypeConnection, "Redis connection failed", err)
	}

	return repo.NewErrorWithCause(repo.ErrorTypeDatabase, "Redis operation failed", err)
}
