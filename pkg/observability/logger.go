package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}[l]
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel parses a level name ("debug", "info", "warn", "error")
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return DebugLevel
	case "warn", "WARN", "warning":
		return WarnLevel
	case "error", "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger emits structured JSON lines via slog. Child loggers returned by
// the With* methods share the parent's handler and accumulate fields.
type Logger struct {
	slog  *slog.Logger
	level LogLevel
}

// NewLogger creates a structured logger writing JSON lines to output
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level.slogLevel(),
	})
	return &Logger{slog: slog.New(handler), level: level}
}

func (l *Logger) child(args ...interface{}) *Logger {
	return &Logger{slog: l.slog.With(args...), level: l.level}
}

// WithField returns a child logger carrying an extra field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.child(key, value)
}

// WithFields returns a child logger carrying several extra fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.child(args...)
}

// WithError returns a child logger carrying the error as a field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.child("error", err.Error())
}

// WithContext returns a child logger carrying the request-scoped
// identifiers present in ctx: the request id and, once the guard admitted
// the request, the user id.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	out := l
	if id := GetRequestID(ctx); id != "" {
		out = out.child("request_id", id)
	}
	if id := GetUserID(ctx); id != "" {
		out = out.child("user_id", id)
	}
	return out
}

func (l *Logger) Debug(message string) { l.slog.Debug(message) }

func (l *Logger) Info(message string) { l.slog.Info(message) }

func (l *Logger) Warn(message string) { l.slog.Warn(message) }

func (l *Logger) Error(message string) { l.slog.Error(message) }

type contextKey int

const (
	requestIDKey contextKey = iota
	userIDKey
)

// WithRequestID stores the request id in the context for log correlation
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request id, or "" when absent
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithUserID stores the authenticated user's id in the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the authenticated user's id, or "" when absent
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}
