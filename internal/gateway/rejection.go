package gateway

import "net/http"

// Kind classifies a terminal rejection for metrics and the envelope.
type Kind string

const (
	KindAuthFailed     Kind = "auth-failed"
	KindRateLimited    Kind = "rate-limited"
	KindQuotaExhausted Kind = "quota-exhausted"
	KindUpstreamFailed Kind = "upstream-failed"
	KindCircuitOpen    Kind = "circuit-open"
	KindSystemError    Kind = "system-error"
)

// Rejection is the typed terminal outcome a filter produces. The
// response writer maps it to the wire envelope; auth-class rejections
// deliberately carry no body and no internal detail.
type Rejection struct {
	Kind    Kind
	Status  int
	Message string
	Data    any
	// EmptyBody suppresses the envelope entirely (403 responses).
	EmptyBody bool
}

// RejectForbidden terminates with a bare 403. Every authentication,
// authorization and admission failure uses the same opaque rejection
// so callers cannot probe which check failed.
func RejectForbidden() *Rejection {
	return &Rejection{
		Kind:      KindAuthFailed,
		Status:    http.StatusForbidden,
		EmptyBody: true,
	}
}

// RejectTooMany terminates with a 429 envelope.
func RejectTooMany(kind Kind, message string) *Rejection {
	return &Rejection{
		Kind:    kind,
		Status:  http.StatusTooManyRequests,
		Message: message,
	}
}

// RejectServiceUnavailable terminates with a 503 envelope.
func RejectServiceUnavailable(message string, data any) *Rejection {
	return &Rejection{
		Kind:    KindCircuitOpen,
		Status:  http.StatusServiceUnavailable,
		Message: message,
		Data:    data,
	}
}

// RejectUpstreamFailed terminates with a 500 envelope describing the
// proxy failure.
func RejectUpstreamFailed(err error) *Rejection {
	return &Rejection{
		Kind:    KindUpstreamFailed,
		Status:  http.StatusInternalServerError,
		Message: "upstream error: " + err.Error(),
	}
}

// RejectSystemError terminates with a generic 500 envelope. The
// underlying error goes to the log, never to the client.
func RejectSystemError() *Rejection {
	return &Rejection{
		Kind:    KindSystemError,
		Status:  http.StatusInternalServerError,
		Message: "internal gateway error",
	}
}
