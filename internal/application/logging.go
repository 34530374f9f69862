package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/campus-events/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// logOutcome writes the single per-operation log line.
func logOutcome(ctx context.Context, logger *slog.Logger, err error, failure, success string) {
	if err != nil {
		logger.Log(ctx, levelFor(err), failure, "error", err, "error_kind", ErrorKind(err))
		return
	}
	logger.InfoContext(ctx, success)
}

func levelFor(err error) slog.Level {
	if expectedError(err) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// expectedError reports whether err is a caller mistake rather than a fault.
func expectedError(err error) bool {
	switch ErrorKind(err) {
	case "validation", "not_found", "forbidden", "conflict", "unauthenticated":
		return true
	}
	return false
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var chErr *ChannelError
	if errors.As(err, &chErr) {
		return "channel"
	}

	return "unexpected"
}
