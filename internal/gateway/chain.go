package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxBodyBytes caps the captured request body. Bodies beyond this are
// refused before any filter runs.
const maxBodyBytes = 8 << 20

// Filter is one stage of the pipeline. Run either lets the exchange
// continue (no rejection set) or terminates it by calling ex.Reject.
// A returned error is an unexpected fault and maps to system-error.
type Filter interface {
	Name() string
	Run(ctx context.Context, ex *Exchange) error
}

// Chain is the ordered filter pipeline bound to an http.Handler. The
// response writer is not a filter: it is the deferred terminal stage
// and runs on every path out of ServeHTTP once the request body has
// been captured. A body that cannot be read or exceeds maxBodyBytes
// gets a plain-text error instead, without the envelope.
type Chain struct {
	filters []Filter
	logger  *zap.Logger
}

// NewChain builds a pipeline running the given filters in order.
func NewChain(logger *zap.Logger, filters ...Filter) *Chain {
	return &Chain{filters: filters, logger: logger}
}

// ServeHTTP implements http.Handler for the catch-all gateway route.
func (c *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodyBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ex := NewExchange(r, body)
	defer writeResponse(w, ex, c.logger)

	ctx := r.Context()
	for _, f := range c.filters {
		if ctx.Err() != nil {
			// Client went away; skip remaining filters. Quota already
			// consumed stays consumed.
			ex.Reject(RejectSystemError())
			return
		}

		start := time.Now()
		err := f.Run(ctx, ex)
		ex.timings = append(ex.timings, filterTiming{name: f.Name(), elapsed: time.Since(start)})

		if err != nil {
			c.logger.Error("filter fault",
				zap.String("filter", f.Name()),
				zap.String("request_id", ex.RequestID),
				zap.Error(err))
			ex.Reject(RejectSystemError())
			return
		}
		if ex.Rejected() {
			return
		}
	}
}
