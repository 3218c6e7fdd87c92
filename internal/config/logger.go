package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger from log_level and log_format.
// "console" selects the development encoder, anything else JSON.
func (c *Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if c.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(c.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
		}
		zc.Level = level
	}
	return zc.Build()
}
