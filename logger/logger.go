package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/codejudge/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "codejudge"

// modes maps logging.mode to the zap preset it starts from.
var modes = map[string]func() zap.Config{
	"development": func() zap.Config {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	},
	"production": func() zap.Config {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		// execution outcomes are low volume; keep every entry
		cfg.Sampling = nil
		return cfg
	},
}

// NewFromConfig builds the application logger from the logging section.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	return New(cfg.Logging.Mode, cfg.Logging.Level)
}

// New builds a logger for mode ("production" or "development") at level.
func New(mode, level string) (*zap.Logger, error) {
	preset, ok := modes[mode]
	if !ok {
		return nil, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level %q: %w", level, err)
	}

	cfg := preset()
	cfg.Level = lvl
	cfg.InitialFields = map[string]any{"service": ServiceName}
	return cfg.Build()
}
