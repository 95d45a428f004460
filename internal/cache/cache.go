package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when a key does not exist or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when the cache backend cannot be reached
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrInvalidValue is returned when a stored value cannot be decoded
	ErrInvalidValue = errors.New("invalid cache value")
)

// Cache defines the primitive operations for a TTL key-value cache.
// It backs the pending consent-request flow only; tokens and credentials are
// never cached, every request re-validates against the store.
type Cache[T any] interface {
	// Get retrieves a value. Returns ErrCacheMiss if the key does not exist
	// or has expired.
	Get(ctx context.Context, key string) (T, error)

	// Set stores a value with TTL
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection
	Close() error

	// Health checks if the cache is healthy
	Health(ctx context.Context) error
}
