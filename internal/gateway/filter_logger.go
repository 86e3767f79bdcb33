package gateway

import (
	"context"
	"net"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestLogger stamps the exchange with its request ID and client IP
// (route and start time are captured by NewExchange). It never
// terminates the request.
type RequestLogger struct {
	logger      *zap.Logger
	logRequests bool
}

// NewRequestLogger creates the first filter of the chain.
func NewRequestLogger(logger *zap.Logger, logRequests bool) *RequestLogger {
	return &RequestLogger{logger: logger, logRequests: logRequests}
}

func (f *RequestLogger) Name() string { return "request_logger" }

func (f *RequestLogger) Run(_ context.Context, ex *Exchange) error {
	ex.RequestID = uuid.NewString()
	ex.ClientIP = clientIP(ex)

	if f.logRequests {
		f.logger.Info("request received",
			zap.String("request_id", ex.RequestID),
			zap.String("method", ex.Method),
			zap.String("path", ex.PlatformPath),
			zap.String("client_ip", ex.ClientIP))
	}
	return nil
}

// clientIP derives the caller address. Precedence: first entry of
// X-Forwarded-For, then X-Real-IP, then the peer address, then the
// literal "unknown".
func clientIP(ex *Exchange) string {
	if xff := ex.Request.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(ex.Request.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if addr := ex.Request.RemoteAddr; addr != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return addr
		}
		return host
	}
	return "unknown"
}
