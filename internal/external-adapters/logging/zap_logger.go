// Package logging implements interfaces.Logger on top of zap.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
)

// Config selects the zap preset and level
type Config struct {
	// Debug selects the development preset and debug level
	Debug bool
	// Level overrides the preset level (debug, info, warn, error)
	Level string
	// JSON switches from console to JSON encoding
	JSON bool
}

// ZapLogger adapts a zap.Logger to interfaces.Logger
type ZapLogger struct {
	logger *zap.Logger
}

var _ interfaces.Logger = (*ZapLogger)(nil)

// New builds a logger writing to stderr
func New(cfg Config) (*ZapLogger, error) {
	var zc zap.Config
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	zc.Encoding = "console"
	if cfg.JSON {
		zc.Encoding = "json"
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &ZapLogger{logger: logger}, nil
}

// Wrap adapts an existing zap logger
func Wrap(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

// Debug logs at debug level
func (l *ZapLogger) Debug(msg string, fields ...interfaces.Field) {
	l.logger.Debug(msg, toZap(fields)...)
}

// Info logs at info level
func (l *ZapLogger) Info(msg string, fields ...interfaces.Field) {
	l.logger.Info(msg, toZap(fields)...)
}

// Warn logs at warn level
func (l *ZapLogger) Warn(msg string, fields ...interfaces.Field) {
	l.logger.Warn(msg, toZap(fields)...)
}

// Error logs at error level
func (l *ZapLogger) Error(msg string, fields ...interfaces.Field) {
	l.logger.Error(msg, toZap(fields)...)
}

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

func toZap(fields []interfaces.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
