package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Logger writes action-tagged structured lines.
type Logger interface {
	Debug(ctx context.Context, action, msg string, args ...any)
	Info(ctx context.Context, action, msg string, args ...any)
	Warn(ctx context.Context, action, msg string, args ...any)
	Error(ctx context.Context, action, msg string, err error, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// InitLogger returns a JSON logger on stdout tagged with the service name.
func InitLogger(service string, level Level) Logger {
	return New(os.Stdout, service, level)
}

func New(w io.Writer, service string, level Level) Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &slogLogger{l: slog.New(h).With("service", service)}
}

// Nop discards everything. Used by tests and optional collaborators.
func Nop() Logger {
	return New(io.Discard, "nop", LevelError+1)
}

// ParseLevel maps LOG_LEVEL values onto slog levels; unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (s *slogLogger) Debug(ctx context.Context, action, msg string, args ...any) {
	s.log(ctx, LevelDebug, action, msg, args...)
}

func (s *slogLogger) Info(ctx context.Context, action, msg string, args ...any) {
	s.log(ctx, LevelInfo, action, msg, args...)
}

func (s *slogLogger) Warn(ctx context.Context, action, msg string, args ...any) {
	s.log(ctx, LevelWarn, action, msg, args...)
}

func (s *slogLogger) Error(ctx context.Context, action, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	s.log(ctx, LevelError, action, msg, args...)
}

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

func (s *slogLogger) log(ctx context.Context, level Level, action, msg string, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	args = append([]any{"action", action}, args...)
	s.l.Log(ctx, level, msg, args...)
}
