package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics for monitoring the request pipeline.
var (
	// RequestsTotal counts gateway requests by method, path, and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total gateway requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration measures end-to-end request duration in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Gateway request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// FilterDuration measures per-filter execution time in seconds.
	FilterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_filter_duration_seconds",
			Help:    "Per-filter execution time in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"filter"},
	)

	// RejectionsTotal counts terminated requests by rejection kind.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rejections_total",
			Help: "Requests terminated with a rejection, by kind",
		},
		[]string{"kind"},
	)

	// UpstreamDuration measures upstream call duration by service key.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_upstream_duration_seconds",
			Help:    "Upstream invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)

	// BreakerState exposes the observed circuit state per service key.
	// 0 = closed, 1 = open, 2 = half-open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"service"},
	)
)
