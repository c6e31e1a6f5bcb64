package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger exposes the structured logging surface used across the service.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	With(fields ...Field) Logger
}

// Field represents a structured logging key/value pair.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for constructing a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

type zapLogger struct {
	base *zap.Logger
}

// NewZap wraps an existing zap logger.
func NewZap(base *zap.Logger) Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &zapLogger{base: base}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zapLogger{base: zap.NewNop()}
}

// NewWithWriter creates a console logger writing to w at debug level. Used by tests and the CLI.
func NewWithWriter(w io.Writer) Logger {
	cfg := encoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), zapcore.DebugLevel)
	return &zapLogger{base: zap.New(core)}
}

func (l *zapLogger) Debug(msg string) { l.base.Debug(msg) }
func (l *zapLogger) Info(msg string)  { l.base.Info(msg) }
func (l *zapLogger) Warn(msg string)  { l.base.Warn(msg) }
func (l *zapLogger) Error(msg string) { l.base.Error(msg) }

func (l *zapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &zapLogger{base: l.base.With(toZap(fields)...)}
}

// Sync flushes buffered entries when the logger is zap-backed.
func Sync(l Logger) error {
	if zl, ok := l.(*zapLogger); ok {
		return zl.base.Sync()
	}
	return nil
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
