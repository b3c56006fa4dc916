package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Structured wraps slog for structured logging with sanitized output.
type Structured struct {
	logger *slog.Logger
}

// Config configures the structured logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

var (
	defaultOnce sync.Once
	defaultInst *Structured
)

func defaultStructured() *Structured {
	defaultOnce.Do(func() {
		level := strings.ToLower(os.Getenv("WORKTASK_LOG_LEVEL"))
		if level == "" {
			level = "info"
		}
		defaultInst = NewStructured(Config{Level: level, Format: "text"})
	})
	return defaultInst
}

// NewStructured creates a new structured logger.
func NewStructured(config Config) *Structured {
	level := slog.LevelInfo
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Structured{logger: slog.New(handler)}
}

// Component returns a printf-style Logger scoped to a component attribute.
func (s *Structured) Component(component string) Logger {
	scoped := s.logger
	if component != "" {
		scoped = scoped.With("component", component)
	}
	return &printfAdapter{logger: scoped}
}

// With adds additional fields to the logger.
func (s *Structured) With(args ...any) *Structured {
	return &Structured{logger: s.logger.With(args...)}
}

// WithContext adds correlation and session identifiers from the context.
func (s *Structured) WithContext(ctx context.Context) *Structured {
	var args []any
	if id := CorrelationIDFromContext(ctx); id != "" {
		args = append(args, "correlation_id", id)
	}
	if id := SessionIDFromContext(ctx); id != "" {
		args = append(args, "session_id", id)
	}
	if len(args) == 0 {
		return s
	}
	return &Structured{logger: s.logger.With(args...)}
}

type printfAdapter struct {
	logger *slog.Logger
}

func (l *printfAdapter) Debug(format string, args ...any) {
	l.logger.Debug(Sanitize(fmt.Sprintf(format, args...)))
}

func (l *printfAdapter) Info(format string, args ...any) {
	l.logger.Info(Sanitize(fmt.Sprintf(format, args...)))
}

func (l *printfAdapter) Warn(format string, args ...any) {
	l.logger.Warn(Sanitize(fmt.Sprintf(format, args...)))
}

func (l *printfAdapter) Error(format string, args ...any) {
	l.logger.Error(Sanitize(fmt.Sprintf(format, args...)))
}

// Context key types
type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	sessionIDKey     contextKey = "session_id"
)

// ContextWithCorrelationID adds a correlation ID to the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from the context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithSessionID adds a session ID to the context.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext extracts the session ID from the context.
func SessionIDFromContext(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}
