package registry

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/domain"
)

// ErrUnavailable is returned when the registry breaker is open and
// no call was attempted.
var ErrUnavailable = errors.New("registry: temporarily unavailable")

// resilientDefaults tune the in-process breaker and the lookup retry.
const (
	cbMaxRequests      = 3
	cbInterval         = 10 * time.Second
	cbTimeout          = 30 * time.Second
	cbFailureThreshold = 5

	retryAttempts     = 3
	retryInitialDelay = 50 * time.Millisecond
)

// Resilient decorates a Registry with a circuit breaker and bounded
// retries. Only the two read operations retry; quota mutations run at
// most once so a retried PreConsume can never double-spend.
type Resilient struct {
	inner   Registry
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewResilient wraps inner with failure protection.
func NewResilient(inner Registry, logger *zap.Logger) *Resilient {
	r := &Resilient{inner: inner, logger: logger}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "registry",
		MaxRequests: cbMaxRequests,
		Interval:    cbInterval,
		Timeout:     cbTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cbFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("registry breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return r
}

var _ Registry = (*Resilient)(nil)

// execute runs fn behind the breaker, mapping open-state rejections
// to ErrUnavailable.
func (r *Resilient) execute(fn func() (any, error)) (any, error) {
	out, err := r.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	return out, err
}

// lookup retries fn with exponential backoff, each attempt behind the
// breaker. Context cancellation stops the retry loop.
func (r *Resilient) lookup(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	var out any
	backoff := retry.WithMaxRetries(retryAttempts-1, retry.NewExponential(retryInitialDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := r.execute(fn)
		if err != nil {
			if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
				return err // not retryable
			}
			r.logger.Warn("registry lookup failed, retrying",
				zap.String("op", op), zap.Error(err))
			return retry.RetryableError(err)
		}
		out = v
		return nil
	})
	return out, err
}

func (r *Resilient) GetInvokeUser(ctx context.Context, accessKey string) (*domain.Consumer, error) {
	out, err := r.lookup(ctx, "get_invoke_user", func() (any, error) {
		return r.inner.GetInvokeUser(ctx, accessKey)
	})
	if err != nil {
		return nil, err
	}
	c, _ := out.(*domain.Consumer)
	return c, nil
}

func (r *Resilient) GetInterfaceInfo(ctx context.Context, platformPath, method string) (*domain.InterfaceRecord, error) {
	out, err := r.lookup(ctx, "get_interface_info", func() (any, error) {
		return r.inner.GetInterfaceInfo(ctx, platformPath, method)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := out.(*domain.InterfaceRecord)
	return rec, nil
}

func (r *Resilient) PreConsume(ctx context.Context, interfaceID, consumerID int64) (bool, error) {
	out, err := r.execute(func() (any, error) {
		return r.inner.PreConsume(ctx, interfaceID, consumerID)
	})
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}

func (r *Resilient) InvokeCount(ctx context.Context, interfaceID, consumerID int64) (bool, error) {
	out, err := r.execute(func() (any, error) {
		return r.inner.InvokeCount(ctx, interfaceID, consumerID)
	})
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
