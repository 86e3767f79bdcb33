// Package http wires the gateway pipeline and the operational
// endpoints into a chi router.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	// Gateway handles every non-operational route.
	Gateway http.Handler
	// Store is probed by /readyz. Required.
	Store Pinger
	// Registry is probed by /readyz when non-nil.
	Registry Pinger
	// EdgeRPS is the per-IP requests-per-second cap ahead of the
	// pipeline.
	// Zero disables the edge limiter.
	EdgeRPS int
}

// NewRouter builds the gateway's HTTP surface: liveness, readiness
// and metrics first, then the catch-all pipeline mount.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	if deps.EdgeRPS > 0 {
		r.Use(httprate.LimitByIP(deps.EdgeRPS, time.Second))
	}

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Handle("/*", deps.Gateway)

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready only when the coordination store and the
// registry both answer a ping.
func handleReadyz(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if err := deps.Store.Ping(ctx); err != nil {
			checks["store"] = err.Error()
			healthy = false
		} else {
			checks["store"] = "ok"
		}

		if deps.Registry != nil {
			if err := deps.Registry.Ping(ctx); err != nil {
				checks["registry"] = err.Error()
				healthy = false
			} else {
				checks["registry"] = "ok"
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, checks)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
