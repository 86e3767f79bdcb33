// Package store defines the shared coordination store used by the
// rate limiter, the replay guard, and the circuit breaker: a small
// key-value plus ordered-set surface with TTLs. The Redis adapter is
// the production implementation; the in-memory one serves tests and
// single-node deployments.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// Store is the coordination-store port. Implementations must make
// each operation atomic per key; callers rely on that serialization
// for the sliding window and the replay guard.
type Store interface {
	// ZAdd adds member with the given score to the ordered set at key.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRemRangeByScore removes members with score in [min, max].
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	// ZCount counts members with score in [min, max].
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)
	// Expire sets the TTL of key. Unknown keys are a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// SetNX sets key to value with a TTL iff it does not exist.
	// Returns true when this call created the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes key to value with a TTL (0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes the given keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
}
