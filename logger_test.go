package cimodel

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNoOpLogger(t *testing.T) {
	logger := &NoOpLogger{}

	// Should not panic
	logger.Debug("test", "key", "value")
	logger.Info("test", "key", "value")
	logger.Warn("test", "key", "value")
	logger.Error("test", "key", "value")
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := NewZapLogger(zap.New(core))

	logger := WithFields(base, "type", "app.UserAccount")
	logger.Info("loaded", "table", "user_account")
	logger.Warn("slow", "ms", 120)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ContextMap()["type"] != "app.UserAccount" {
			t.Errorf("entry %q missing prefixed field: %v", e.Message, e.ContextMap())
		}
	}
	if entries[0].ContextMap()["table"] != "user_account" {
		t.Error("call fields should follow the prefixed ones")
	}
}

func TestWithFieldsShortcuts(t *testing.T) {
	noop := &NoOpLogger{}
	if WithFields(noop, "k", "v") != Logger(noop) {
		t.Error("no-op loggers need no wrapping")
	}
	if _, ok := WithFields(nil, "k", "v").(*NoOpLogger); !ok {
		t.Error("nil logger should become a no-op logger")
	}

	core, _ := observer.New(zapcore.InfoLevel)
	base := NewZapLogger(zap.New(core))
	if WithFields(base) != Logger(base) {
		t.Error("no fields should return the logger unchanged")
	}
}

func TestLoggerFieldVariants(t *testing.T) {
	logger := WithFields(&NoOpLogger{}, "component", "test")

	testCases := []struct {
		name   string
		fields []interface{}
	}{
		{"no fields", nil},
		{"one pair", []interface{}{"key", "value"}},
		{"odd fields", []interface{}{"k1", "v1", "k2"}},
		{"mixed types", []interface{}{"int", 123, "float", 45.67, "bool", true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger.Info("message", tc.fields...)
			logger.Debug("message", tc.fields...)
			logger.Warn("message", tc.fields...)
			logger.Error("message", tc.fields...)
		})
	}
}
