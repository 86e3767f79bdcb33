// Package observability provides logging and metrics for the gateway.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xiaoxin/api-gateway/internal/config"
)

// NewLogger creates a zap logger based on configuration.
// Production/staging environments start from zap's production config,
// all others from its development config; log.format ("json" or
// "console") then sets the encoding in every environment.
func NewLogger(cfg config.LogConfig, appEnv string) (*zap.Logger, error) {
	var zapConfig zap.Config

	if appEnv == "production" || appEnv == "staging" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Format {
	case "json":
		zapConfig.Encoding = "json"
	case "console":
		zapConfig.Encoding = "console"
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	return zapConfig.Build()
}

// NewNopLogger creates a no-op logger for testing.
func NewNopLogger() *zap.Logger {
	return zap.NewNop()
}
