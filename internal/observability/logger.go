// Package observability holds the service-wide zap logger and the private
// prometheus registry with its request, cache, and upstream metrics.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the production JSON logger. Every line carries the service
// name so aggregated logs stay attributable; LOG_LEVEL overrides the level.
func NewLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = parseLogLevel(os.Getenv("LOG_LEVEL"))
	config.InitialFields = map[string]any{"service": "ecowatch-service"}

	return config.Build()
}

func parseLogLevel(s string) zap.AtomicLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "WARN":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "ERROR":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
