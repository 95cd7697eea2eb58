package cimodel

// Logger accepts structured log messages from records and factories.
// Fields are alternating key-value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NoOpLogger is a logger that does nothing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, fields ...interface{}) {}
func (l *NoOpLogger) Info(msg string, fields ...interface{})  {}
func (l *NoOpLogger) Warn(msg string, fields ...interface{})  {}
func (l *NoOpLogger) Error(msg string, fields ...interface{}) {}

// fieldsLogger prefixes every message with fixed key-value pairs
type fieldsLogger struct {
	next   Logger
	fields []interface{}
}

// WithFields returns a Logger that adds fields to every message
func WithFields(logger Logger, fields ...interface{}) Logger {
	if logger == nil {
		return &NoOpLogger{}
	}
	if _, ok := logger.(*NoOpLogger); ok || len(fields) == 0 {
		return logger
	}
	return &fieldsLogger{next: logger, fields: fields}
}

func (l *fieldsLogger) merge(fields []interface{}) []interface{} {
	all := make([]interface{}, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	return append(all, fields...)
}

func (l *fieldsLogger) Debug(msg string, fields ...interface{}) { l.next.Debug(msg, l.merge(fields)...) }
func (l *fieldsLogger) Info(msg string, fields ...interface{})  { l.next.Info(msg, l.merge(fields)...) }
func (l *fieldsLogger) Warn(msg string, fields ...interface{})  { l.next.Warn(msg, l.merge(fields)...) }
func (l *fieldsLogger) Error(msg string, fields ...interface{}) { l.next.Error(msg, l.merge(fields)...) }
