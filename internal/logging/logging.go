// Package logging builds the single *zap.SugaredLogger threaded
// through every component, replacing ad hoc print-based tracing with
// structured, leveled logs.
package logging

import (
	"go.uber.org/zap"
)

// New builds a production-style JSON logger, or a console-encoded
// development logger with debug level when debug is true.
func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
