package cimodel

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap logger to Logger. Key-value pairs passed to the
// level methods become structured fields.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps logger
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

// BuildZap builds a zap logger enabled from level upwards ("debug", "info",
// "warn", "error"). Production output is JSON with ISO8601 times under
// "timestamp"; development output is colored console text.
func BuildZap(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "log level",
			"value":  level,
			"reason": err.Error(),
		})
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// NewProductionZapLogger returns a JSON Logger named "cimodel" for records
// and factories
func NewProductionZapLogger(level string) (*ZapLogger, error) {
	logger, err := BuildZap(level, false)
	if err != nil {
		return nil, err
	}
	return NewZapLogger(logger.Named("cimodel")), nil
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) {
	l.sugar.Debugw(msg, fields...)
}

func (l *ZapLogger) Info(msg string, fields ...interface{}) {
	l.sugar.Infow(msg, fields...)
}

func (l *ZapLogger) Warn(msg string, fields ...interface{}) {
	l.sugar.Warnw(msg, fields...)
}

func (l *ZapLogger) Error(msg string, fields ...interface{}) {
	l.sugar.Errorw(msg, fields...)
}

// Sync flushes buffered entries; call it before the process exits
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
