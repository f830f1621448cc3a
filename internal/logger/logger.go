package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the process logger. level is one of "debug", "info", "warn",
// "error"; anything else is rejected so a typo in PAPERTRADE_LOG_LEVEL is
// caught at startup instead of silently defaulting.
func New(level string) (*zap.Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stdout"}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", level)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	sync := func() { _ = l.Sync() }
	return l, sync, nil
}
