package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/room-booking/internal/logging"
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

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRoomUnavailable):
		return "room_unavailable"
	case errors.Is(err, ErrResourceUnavailable):
		return "resource_unavailable"
	case errors.Is(err, ErrSchedulingConflict):
		return "scheduling_conflict"
	case errors.Is(err, ErrInsufficientQuantity):
		return "insufficient_quantity"
	case errors.Is(err, ErrInUse):
		return "in_use"
	case errors.Is(err, ErrRetryable):
		return "retryable"
	}
	return "unexpected"
}

// logOutcome logs expected failures at warn level and everything else at error.
func logOutcome(ctx context.Context, logger *slog.Logger, err error, failure string) {
	kind := ErrorKind(err)
	if kind == "unexpected" {
		logger.ErrorContext(ctx, failure, "error", err, "error_kind", kind)
		return
	}
	logger.WarnContext(ctx, failure, "error", err, "error_kind", kind)
}
