package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. development switches to the console encoder
// with stack traces on warnings.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// ParseLevel accepts zap level names; empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return lvl, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}
	return lvl, nil
}

// Upstream picks the level for an upstream failure: rate limits are expected
// and logged at warn, everything else at error.
func Upstream(log *zap.Logger, err error, msg string, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if IsRateLimit(err) {
		log.Warn(msg, fields...)
		return
	}
	log.Error(msg, fields...)
}
