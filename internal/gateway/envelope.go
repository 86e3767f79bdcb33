package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/observability"
)

// Envelope is the uniform response body for every gateway response.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// CircuitOpenData is the envelope payload for circuit-open responses.
type CircuitOpenData struct {
	Service    string `json:"service"`
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion"`
}

// corsAllowHeaders lists the headers a browser client may send,
// including the gateway's signing set.
const corsAllowHeaders = "Content-Type,Authorization,accessKey,sign,nonce,timestamp,x-content-sha256"

// writeResponse is the terminal stage of every exchange. It stamps
// the response headers, renders the envelope (or the bare 403), and
// records the request metrics. It runs exactly once per request,
// whether the chain completed or short-circuited.
func writeResponse(w http.ResponseWriter, ex *Exchange, logger *zap.Logger) {
	h := w.Header()
	h.Set("Content-Type", "application/json;charset=UTF-8")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Max-Age", "3600")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("X-Powered-By", "XiaoXin-API-Gateway")
	if ex.RequestID != "" {
		h.Set("X-Request-ID", ex.RequestID)
	}

	status := http.StatusOK
	var env *Envelope

	switch {
	case ex.Rejected():
		rej := ex.Rejection()
		status = rej.Status
		if !rej.EmptyBody {
			env = &Envelope{
				Code:      rej.Status,
				Message:   rej.Message,
				Data:      rej.Data,
				Timestamp: time.Now().UnixMilli(),
			}
		}
	case ex.Upstream != nil:
		env = &Envelope{
			Code:      http.StatusOK,
			Message:   "ok",
			Data:      parseBody(ex.Upstream.Body),
			Timestamp: time.Now().UnixMilli(),
		}
	default:
		// A chain that neither rejected nor proxied is a bug.
		status = http.StatusInternalServerError
		env = &Envelope{
			Code:      status,
			Message:   "internal gateway error",
			Data:      nil,
			Timestamp: time.Now().UnixMilli(),
		}
	}

	w.WriteHeader(status)
	if env != nil {
		if err := json.NewEncoder(w).Encode(env); err != nil {
			logger.Error("encode response envelope",
				zap.String("request_id", ex.RequestID), zap.Error(err))
		}
	}

	recordMetrics(ex, status)
}

// parseBody surfaces the upstream body as parsed JSON when it is
// valid JSON, otherwise as a raw string.
func parseBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}
	return string(body)
}

func recordMetrics(ex *Exchange, status int) {
	path := ex.PlatformPath
	method := ex.Method

	observability.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	observability.RequestDuration.WithLabelValues(method, path).
		Observe(time.Since(ex.StartTime).Seconds())

	for _, t := range ex.timings {
		observability.FilterDuration.WithLabelValues(t.name).Observe(t.elapsed.Seconds())
	}
	if ex.Rejected() {
		observability.RejectionsTotal.WithLabelValues(string(ex.Rejection().Kind)).Inc()
	}
}
