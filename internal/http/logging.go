package http

import (
	"context"
	"log/slog"

	"github.com/example/room-booking/internal/application"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request scoped logger, which already carries the
// request id and principal, over the handler's own.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
		if principal, ok := PrincipalFromContext(ctx); ok {
			logger = logger.With("principal_id", principal.UserID)
		}
	}

	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	return logger.With(append(pairs, attrs...)...)
}

// logServiceFailure logs at error level only for failures the caller cannot fix.
func logServiceFailure(ctx context.Context, logger *slog.Logger, message string, err error) {
	kind := application.ErrorKind(err)
	level := slog.LevelWarn
	if kind == "unexpected" {
		level = slog.LevelError
	}
	logger.Log(ctx, level, message, "error", err, "error_kind", kind)
}
