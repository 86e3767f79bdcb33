package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/breaker"
	"github.com/xiaoxin/api-gateway/internal/metering"
	"github.com/xiaoxin/api-gateway/internal/observability"
	"github.com/xiaoxin/api-gateway/internal/upstream"
)

// ProxyFilter is the terminal filter: it gates the call through the
// circuit breaker, invokes the upstream, feeds the breaker with the
// outcome, and records usage on success.
type ProxyFilter struct {
	invoker  *upstream.Invoker
	breaker  *breaker.Breaker // nil when the breaker is disabled
	recorder metering.Recorder
	logger   *zap.Logger
}

// NewProxyFilter creates the proxy stage. br may be nil to disable
// circuit breaking.
func NewProxyFilter(invoker *upstream.Invoker, br *breaker.Breaker, recorder metering.Recorder, logger *zap.Logger) *ProxyFilter {
	return &ProxyFilter{invoker: invoker, breaker: br, recorder: recorder, logger: logger}
}

func (f *ProxyFilter) Name() string { return "proxy" }

func (f *ProxyFilter) Run(ctx context.Context, ex *Exchange) error {
	rec := ex.Interface
	svc := breaker.ServiceKey(rec.ProviderURL, rec.ID)

	probe := false
	if f.breaker != nil {
		switch f.breaker.Acquire(ctx, svc) {
		case breaker.Reject:
			ex.Reject(RejectServiceUnavailable(
				"service temporarily unavailable, retry later",
				CircuitOpenData{
					Service:    svc,
					Reason:     "circuit open",
					Suggestion: "wait for the service to recover before retrying",
				}))
			return nil
		case breaker.ProceedProbe:
			probe = true
		}
	}

	start := time.Now()
	result, err := f.invoker.Do(ctx, ex.Request, ex.Body, rec, ex.RequestID)
	elapsed := time.Since(start)

	if err == nil && !result.OK() {
		err = fmt.Errorf("upstream status %d", result.StatusCode)
	}

	if err != nil {
		observability.UpstreamDuration.WithLabelValues(svc, "failure").Observe(elapsed.Seconds())
		f.logger.Warn("upstream call failed",
			zap.String("request_id", ex.RequestID),
			zap.String("service", svc),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))

		if f.breaker != nil {
			f.breaker.RecordFailure(ctx, svc)
			if probe {
				f.breaker.Reopen(ctx, svc)
				f.breaker.ReleaseProbe(ctx, svc)
			}
		}
		ex.Reject(RejectUpstreamFailed(err))
		return nil
	}

	observability.UpstreamDuration.WithLabelValues(svc, "success").Observe(elapsed.Seconds())

	if f.breaker != nil {
		f.breaker.RecordSuccess(ctx, svc)
		if probe {
			f.breaker.ReleaseProbe(ctx, svc)
		}
	}

	ex.Upstream = result
	if f.recorder != nil {
		f.recorder.RecordInvocation(rec.ID, ex.Consumer.ID)
	}
	return nil
}
