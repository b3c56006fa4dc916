package logging

import (
	"fmt"
	"reflect"
)

// Logger defines a minimal, printf-style logging contract.
//
// It intentionally stays small so domain packages can depend on it without
// pulling in handler configuration.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// NewComponentLogger returns the default structured logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return defaultStructured().Component(component)
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}

type prefixLogger struct {
	inner  Logger
	prefix string
}

// WithPrefix returns a logger that prepends a bracketed prefix to every line.
func WithPrefix(logger Logger, prefix string) Logger {
	if prefix == "" {
		return OrNop(logger)
	}
	return &prefixLogger{inner: OrNop(logger), prefix: fmt.Sprintf("[%s] ", prefix)}
}

func (l *prefixLogger) Debug(format string, args ...any) { l.inner.Debug(l.prefix+format, args...) }
func (l *prefixLogger) Info(format string, args ...any)  { l.inner.Info(l.prefix+format, args...) }
func (l *prefixLogger) Warn(format string, args ...any)  { l.inner.Warn(l.prefix+format, args...) }
func (l *prefixLogger) Error(format string, args ...any) { l.inner.Error(l.prefix+format, args...) }
