// Package logging builds the process logger.
package logging

import (
	"fmt"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/config"
	"go.uber.org/zap"
)

// New returns a JSON production logger, or a console logger in development
// mode, at the configured level.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
