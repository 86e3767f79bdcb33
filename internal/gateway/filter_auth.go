package gateway

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/domain"
	"github.com/xiaoxin/api-gateway/internal/replay"
	"github.com/xiaoxin/api-gateway/internal/sign"
)

// Request headers consumed by the authenticator.
const (
	headerAccessKey     = "accessKey"
	headerNonce         = "nonce"
	headerTimestamp     = "timestamp"
	headerSign          = "sign"
	headerContentSHA256 = "x-content-sha256"
)

// AuthConfig tunes the authenticator.
type AuthConfig struct {
	NonceLength       int
	SignatureTimeout  time.Duration
	ValidateTimestamp bool
	ReplayProtection  bool
}

// Authenticator verifies the request signature and defends against
// replay. Cheap shape checks run before the consumer lookup and the
// HMAC so garbage requests never reach the registry.
type Authenticator struct {
	resolver ConsumerResolverFunc
	guard    *replay.Guard
	cfg      AuthConfig
	logger   *zap.Logger

	now func() time.Time
}

// ConsumerResolverFunc decouples the filter from the registry package.
type ConsumerResolverFunc func(ctx context.Context, accessKey string) (*domain.Consumer, error)

// NewAuthenticator creates the signature filter. guard may be nil
// when replay protection is disabled.
func NewAuthenticator(resolve ConsumerResolverFunc, guard *replay.Guard, cfg AuthConfig, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		resolver: resolve,
		guard:    guard,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the filter's time source. Test helper.
func (f *Authenticator) SetClock(now func() time.Time) { f.now = now }

func (f *Authenticator) Name() string { return "authenticator" }

func (f *Authenticator) Run(ctx context.Context, ex *Exchange) error {
	h := ex.Request.Header
	accessKey := h.Get(headerAccessKey)
	nonce := h.Get(headerNonce)
	timestamp := h.Get(headerTimestamp)
	signature := h.Get(headerSign)

	if accessKey == "" || nonce == "" || timestamp == "" || signature == "" {
		ex.Reject(RejectForbidden())
		return nil
	}

	if !validNonce(nonce, f.cfg.NonceLength) {
		ex.Reject(RejectForbidden())
		return nil
	}

	if f.cfg.ValidateTimestamp && !f.freshTimestamp(timestamp) {
		ex.Reject(RejectForbidden())
		return nil
	}

	consumer, err := f.resolver(ctx, accessKey)
	if err != nil {
		// Registry outages fail closed: without the secret there is
		// no way to verify the caller.
		f.logger.Error("consumer lookup failed",
			zap.String("request_id", ex.RequestID), zap.Error(err))
		ex.Reject(RejectForbidden())
		return nil
	}
	if consumer == nil {
		ex.Reject(RejectForbidden())
		return nil
	}

	canonical := sign.Canonical(ex.Method, ex.PlatformPath, h.Get(headerContentSHA256), timestamp, nonce)
	expected := sign.HMACSHA256Hex(canonical, consumer.SecretKey.Reveal())
	if !sign.Verify(signature, expected) {
		ex.Reject(RejectForbidden())
		return nil
	}

	if f.cfg.ReplayProtection && f.guard != nil {
		fresh, err := f.guard.Check(ctx, accessKey, nonce)
		if err != nil {
			// Shared-store outage degrades permissively; the
			// signature itself already checked out.
			f.logger.Error("replay guard unavailable, admitting request",
				zap.String("request_id", ex.RequestID), zap.Error(err))
		} else if !fresh {
			f.logger.Warn("nonce replay detected",
				zap.String("request_id", ex.RequestID),
				zap.String("access_key", accessKey))
			ex.Reject(RejectForbidden())
			return nil
		}
	}

	ex.Consumer = consumer
	return nil
}

// freshTimestamp checks the timestamp header is a decimal epoch
// within the signature validity window of now.
func (f *Authenticator) freshTimestamp(raw string) bool {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	skew := f.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	return skew <= int64(f.cfg.SignatureTimeout.Seconds())
}

// validNonce requires exactly length characters from [A-Za-z0-9].
func validNonce(nonce string, length int) bool {
	if len(nonce) != length {
		return false
	}
	for i := 0; i < len(nonce); i++ {
		c := nonce[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
