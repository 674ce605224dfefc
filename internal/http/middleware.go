package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/room-booking/internal/application"
	"github.com/example/room-booking/internal/telemetry"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
	roleAdmin      = "admin"
)

// RequirePrincipal builds the calling principal from gateway supplied headers.
// Requests without X-User-ID are rejected with 401.
func RequirePrincipal(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(headerUserID))
			if userID == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPrincipal)
				return
			}

			principal := application.Principal{
				UserID:  userID,
				IsAdmin: strings.EqualFold(strings.TrimSpace(r.Header.Get(headerUserRole)), roleAdmin),
			}
			if logger := LoggerFromContext(r.Context()); logger != nil {
				r = r.WithContext(ContextWithLogger(r.Context(), logger.With("principal_id", principal.UserID)))
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequestLogger attaches a request scoped logger and span, then logs the
// outcome with status and duration.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := telemetry.StartSpan(r.Context(), "http "+r.Method,
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)
			defer span.End()

			attrs := []any{
				"request_id", middleware.GetReqID(ctx),
				"method", r.Method,
				"path", r.URL.Path,
			}
			if traceID := telemetry.TraceID(ctx); traceID != "" {
				attrs = append(attrs, "trace_id", traceID)
			}
			logger := base.With(attrs...)
			ctx = ContextWithLogger(ctx, logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			span.SetAttributes(attribute.Int("http.status_code", status))

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "request completed", "status", status, "duration", time.Since(start))
		})
	}
}
