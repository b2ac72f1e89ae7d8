// Package logging provides structured, leveled logging for admitkit
// components. It wraps a zap logger behind a small surface so library code
// never depends on zap directly.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel converts a case-insensitive level name. Unknown names map to INFO.
func ParseLevel(s string) Level {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(s)); err != nil {
		return LevelInfo
	}
	switch zl {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger provides structured logging.
type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
}

// New creates a Logger. env "production" selects JSON output; anything else
// selects the human-readable development console encoder.
func New(env string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if env != "production" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Level.SetLevel(zapcore.InfoLevel)
	}

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{zl: zl, level: cfg.Level}, nil
}

// NewFromZap wraps an existing zap logger. SetLevel has no effect on it.
func NewFromZap(zl *zap.Logger) *Logger {
	return &Logger{zl: zl, level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return NewFromZap(zap.NewNop())
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.Named(component), level: l.level}
}

// With returns a new logger that adds fields to every entry.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	return &Logger{zl: l.zl.With(toZap(fields)...), level: l.level}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(zapcore.DebugLevel, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(zapcore.InfoLevel, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(zapcore.WarnLevel, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(zapcore.ErrorLevel, msg, fields...)
}

func toZap(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case error:
			out = append(out, zap.NamedError(k, val))
		case time.Duration:
			out = append(out, zap.Duration(k, val))
		default:
			out = append(out, zap.Any(k, val))
		}
	}
	return out
}

func (l *Logger) log(level zapcore.Level, msg string, fields ...map[string]interface{}) {
	ce := l.zl.Check(level, msg)
	if ce == nil {
		return
	}
	var zf []zap.Field
	if len(fields) > 0 && fields[0] != nil {
		zf = toZap(fields[0])
	}
	ce.Write(zf...)
}

// --- Admission lifecycle helpers ---

// RequestQueued logs a request entering the admission queue.
func (l *Logger) RequestQueued(id string, depth int) {
	l.Debug("request_queued", map[string]interface{}{
		"request_id":  id,
		"queue_depth": depth,
	})
}

// GateWait logs the worker backing off until the gate may admit.
func (l *Logger) GateWait(id string, delay time.Duration) {
	l.Debug("gate_wait", map[string]interface{}{
		"request_id": id,
		"delay":      delay,
	})
}

// RequestAdmitted logs a request passing the gate.
func (l *Logger) RequestAdmitted(id string, waited time.Duration) {
	l.Debug("request_admitted", map[string]interface{}{
		"request_id": id,
		"waited":     waited,
	})
}

// RequestCompleted logs the outcome of the protected operation.
func (l *Logger) RequestCompleted(id string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"request_id": id,
		"duration":   duration,
	}
	if err != nil {
		fields["error"] = err
		l.Warn("operation_failed", fields)
		return
	}
	l.Debug("operation_succeeded", fields)
}

// RequestCanceled logs a request resolved without running.
func (l *Logger) RequestCanceled(id string, reason string) {
	l.Info("request_canceled", map[string]interface{}{
		"request_id": id,
		"reason":     reason,
	})
}

// StateChanged logs a controller state transition.
func (l *Logger) StateChanged(from, to string) {
	l.Info("state_changed", map[string]interface{}{
		"from": from,
		"to":   to,
	})
}
