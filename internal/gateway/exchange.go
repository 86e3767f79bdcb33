// Package gateway implements the request processing pipeline: a
// fixed, ordered chain of filters sharing one per-request Exchange,
// terminated by the response writer that always runs.
package gateway

import (
	"net/http"
	"time"

	"github.com/xiaoxin/api-gateway/internal/domain"
	"github.com/xiaoxin/api-gateway/internal/upstream"
)

// Exchange is the per-request state shared by the filter chain. It is
// created before the first filter and discarded after the response is
// flushed; only the request's own goroutine touches it, so no field
// needs locking.
type Exchange struct {
	Request *http.Request
	// Body is the captured request body; the original stream is
	// consumed once so the signer and the proxy read the same bytes.
	Body []byte

	RequestID    string
	PlatformPath string
	Method       string
	ClientIP     string
	StartTime    time.Time

	// Consumer is set by the authenticator.
	Consumer *domain.Consumer
	// Interface is set by the interface resolver.
	Interface *domain.InterfaceRecord

	// Upstream holds the provider response after a successful proxy
	// call.
	Upstream *upstream.Result

	// rejection is the terminal outcome when a filter short-circuits.
	rejection *Rejection

	// timings records per-filter execution for the metrics sink.
	timings []filterTiming
}

type filterTiming struct {
	name    string
	elapsed time.Duration
}

// NewExchange captures the request into a fresh exchange.
func NewExchange(r *http.Request, body []byte) *Exchange {
	return &Exchange{
		Request:      r,
		Body:         body,
		PlatformPath: r.URL.Path,
		Method:       r.Method,
		StartTime:    time.Now(),
	}
}

// Reject marks the exchange terminated with the given rejection.
func (ex *Exchange) Reject(rej *Rejection) { ex.rejection = rej }

// Rejected reports whether a filter terminated the exchange.
func (ex *Exchange) Rejected() bool { return ex.rejection != nil }

// Rejection returns the terminal rejection, or nil.
func (ex *Exchange) Rejection() *Rejection { return ex.rejection }
