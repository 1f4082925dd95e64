// Package log builds the daemon's single zap-based logger and hands
// out per-subsystem named children (executor, thermal, hwctrl, api,
// ...) with structured fields rather than tagged debug strings, now
// that the host process has a real allocator to spend on them.
//
// Grounded on go.viam.com/rdk's config/logging_level_test.go zap usage,
// generalized into a level-selectable constructor since the
// configuration surface names five levels rather than a single
// always-on debug logger.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel converts one of the five configured log-level strings into a zap
// level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "error":
		return zapcore.ErrorLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "trace":
		// zap has no trace level of its own; our trace is debug with
		// an extra field callers can filter on, so it still shows up
		// at DebugLevel verbosity.
		return zapcore.DebugLevel, nil
	default:
		return 0, fmt.Errorf("log: unknown level %q", s)
	}
}

// New builds a production JSON logger at the given level. Named
// children (exec.Named("executor") etc.) are what individual
// subsystems actually log through.
func New(level string) (*zap.SugaredLogger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("log: build: %w", err)
	}
	return logger.Sugar(), nil
}
