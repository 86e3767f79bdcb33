// Package ratelimit implements the per-consumer sliding-window
// admission control over the shared coordination store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/store"
)

// keyPrefix namespaces rate-limit keys in the shared store.
const keyPrefix = "rl"

// Limiter admits requests per (consumer, interface) pair by counting
// timestamped members of an ordered set inside a sliding window.
//
// The request being admitted is inserted before counting, so a count
// equal to the limit is still admitted and at most limit requests are
// admitted per window. Rejected requests are inserted too and keep
// counting until they leave the window.
type Limiter struct {
	store  store.Store
	window time.Duration
	slack  time.Duration
	logger *zap.Logger

	now func() time.Time
}

// NewLimiter creates a sliding-window limiter. keyExpire must be at
// least the window; the surplus is the eviction slack.
func NewLimiter(s store.Store, window, keyExpire time.Duration, logger *zap.Logger) *Limiter {
	slack := keyExpire - window
	if slack < 0 {
		slack = 0
	}
	return &Limiter{
		store:  s,
		window: window,
		slack:  slack,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the limiter's time source. Test helper.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// Allow runs one admission round for the pair. A non-positive limit
// always admits (limiting disabled for the interface). Store failures
// admit as well: the limiter protects upstreams, not correctness, so
// it fails open when the shared store is unreachable.
func (l *Limiter) Allow(ctx context.Context, consumerID, interfaceID int64, limit int) bool {
	if limit <= 0 {
		return true
	}

	key := fmt.Sprintf("%s:%d:%d", keyPrefix, consumerID, interfaceID)
	nowMS := l.now().UnixMilli()
	windowStart := nowMS - l.window.Milliseconds()

	if err := l.store.ZRemRangeByScore(ctx, key, 0, float64(windowStart)); err != nil {
		l.failOpen(key, err)
		return true
	}

	member := fmt.Sprintf("%d:%s", nowMS, uuid.NewString())
	if err := l.store.ZAdd(ctx, key, float64(nowMS), member); err != nil {
		l.failOpen(key, err)
		return true
	}

	if err := l.store.Expire(ctx, key, l.window+l.slack); err != nil {
		l.failOpen(key, err)
		return true
	}

	count, err := l.store.ZCount(ctx, key, float64(windowStart), float64(nowMS))
	if err != nil {
		l.failOpen(key, err)
		return true
	}

	return count <= int64(limit)
}

func (l *Limiter) failOpen(key string, err error) {
	l.logger.Error("rate limiter store failure, admitting request",
		zap.String("key", key), zap.Error(err))
}
