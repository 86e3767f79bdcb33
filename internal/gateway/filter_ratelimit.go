package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/ratelimit"
)

// RateLimitFilter applies the sliding-window limit per (consumer,
// interface). The interface's own limit wins when positive; otherwise
// the configured default applies, and a non-positive default skips
// limiting entirely.
type RateLimitFilter struct {
	limiter      *ratelimit.Limiter
	defaultLimit int
	logger       *zap.Logger
}

// NewRateLimitFilter creates the sliding-window admission filter.
func NewRateLimitFilter(limiter *ratelimit.Limiter, defaultLimit int, logger *zap.Logger) *RateLimitFilter {
	return &RateLimitFilter{limiter: limiter, defaultLimit: defaultLimit, logger: logger}
}

func (f *RateLimitFilter) Name() string { return "rate_limiter" }

func (f *RateLimitFilter) Run(ctx context.Context, ex *Exchange) error {
	limit := f.defaultLimit
	if ex.Interface.RateLimit != nil && *ex.Interface.RateLimit > 0 {
		limit = *ex.Interface.RateLimit
	}

	if f.limiter.Allow(ctx, ex.Consumer.ID, ex.Interface.ID, limit) {
		return nil
	}

	f.logger.Warn("rate limit exceeded",
		zap.String("request_id", ex.RequestID),
		zap.Int64("consumer_id", ex.Consumer.ID),
		zap.Int64("interface_id", ex.Interface.ID),
		zap.Int("limit", limit))
	ex.Reject(RejectTooMany(KindRateLimited, "rate-limited, retry later"))
	return nil
}
