// Package metering records successful invocations against the
// registry's usage counters. Recording is fire-and-forget: the proxy
// response never waits on it and a failed count is only logged.
package metering

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/registry"
)

// recordTimeout bounds one background InvokeCount call.
const recordTimeout = 10 * time.Second

// Recorder counts one successful invocation of an interface by a
// consumer. Implementations must not block the caller.
type Recorder interface {
	RecordInvocation(interfaceID, consumerID int64)
}

// DirectRecorder calls the registry from a bounded pool of background
// goroutines. When the pool is saturated the count is dropped and
// logged; usage metering never applies backpressure to the proxy.
type DirectRecorder struct {
	reg    registry.Registry
	logger *zap.Logger
	slots  chan struct{}
}

// NewDirectRecorder creates a recorder with the given concurrency.
func NewDirectRecorder(reg registry.Registry, concurrency int, logger *zap.Logger) *DirectRecorder {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &DirectRecorder{
		reg:    reg,
		logger: logger,
		slots:  make(chan struct{}, concurrency),
	}
}

// RecordInvocation increments total_used in the background.
func (r *DirectRecorder) RecordInvocation(interfaceID, consumerID int64) {
	select {
	case r.slots <- struct{}{}:
	default:
		r.logger.Warn("metering pool saturated, dropping invocation count",
			zap.Int64("interface_id", interfaceID),
			zap.Int64("consumer_id", consumerID))
		return
	}

	go func() {
		defer func() { <-r.slots }()

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		ok, err := r.reg.InvokeCount(ctx, interfaceID, consumerID)
		if err != nil {
			r.logger.Error("invoke count failed",
				zap.Int64("interface_id", interfaceID),
				zap.Int64("consumer_id", consumerID),
				zap.Error(err))
			return
		}
		if !ok {
			r.logger.Warn("invoke count matched no quota row",
				zap.Int64("interface_id", interfaceID),
				zap.Int64("consumer_id", consumerID))
		}
	}()
}
