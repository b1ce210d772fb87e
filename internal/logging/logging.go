// Package logging builds the process logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a JSON production logger or, with format "console", a
// human-readable development logger, both at the given level.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = lvl
	return cfg.Build()
}
