package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide logger. In production mode it emits JSON at
// info level; in development mode it emits human-readable console output
// at debug level. Both follow zap's standard config presets.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// With applies a Fields chain to a logger, returning a scoped child logger.
// Components should call this once at construction time rather than
// re-attaching fields on every log call.
func With(logger *zap.Logger, fields Fields) *zap.Logger {
	return logger.With([]zap.Field(fields)...)
}
