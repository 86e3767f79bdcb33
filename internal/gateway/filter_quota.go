package gateway

import (
	"context"

	"go.uber.org/zap"
)

// PreConsumeFunc atomically spends one quota unit, reporting whether
// a unit was available.
type PreConsumeFunc func(ctx context.Context, interfaceID, consumerID int64) (bool, error)

// QuotaGate pre-consumes one unit of the caller's quota before the
// upstream call. Pre-decrement keeps a thundering herd from spending
// past zero; the unit is not restored if the upstream later fails.
type QuotaGate struct {
	preConsume PreConsumeFunc
	failOpen   bool
	logger     *zap.Logger
}

// NewQuotaGate creates the quota filter. failOpen admits requests
// when the quota store itself is unreachable.
func NewQuotaGate(preConsume PreConsumeFunc, failOpen bool, logger *zap.Logger) *QuotaGate {
	return &QuotaGate{preConsume: preConsume, failOpen: failOpen, logger: logger}
}

func (f *QuotaGate) Name() string { return "quota_gate" }

func (f *QuotaGate) Run(ctx context.Context, ex *Exchange) error {
	ok, err := f.preConsume(ctx, ex.Interface.ID, ex.Consumer.ID)
	if err != nil {
		f.logger.Error("quota pre-consume failed",
			zap.String("request_id", ex.RequestID),
			zap.Int64("consumer_id", ex.Consumer.ID),
			zap.Int64("interface_id", ex.Interface.ID),
			zap.Bool("fail_open", f.failOpen),
			zap.Error(err))
		if f.failOpen {
			return nil
		}
		ex.Reject(RejectServiceUnavailable("quota service unavailable, retry later", nil))
		return nil
	}
	if !ok {
		ex.Reject(RejectTooMany(KindQuotaExhausted, "quota exhausted or not provisioned"))
		return nil
	}
	return nil
}
