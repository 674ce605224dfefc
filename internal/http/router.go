package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthChecker reports whether the service can reach its storage.
type HealthChecker func(ctx context.Context) error

type RouterConfig struct {
	Bookings  *BookingHandler
	Rooms     *RoomHandler
	Resources *ResourceHandler
	Health    HealthChecker
	Logger    *slog.Logger
	// Middleware wraps every route, outermost first, after request logging.
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, RequestLogger(logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", healthHandler(cfg.Health, newResponder(logger)))

	r.Group(func(r chi.Router) {
		r.Use(RequirePrincipal(logger))

		if h := cfg.Bookings; h != nil {
			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Post("/availability", h.Availability)
				r.Get("/{id}", h.Get)
				r.Patch("/{id}", h.Update)
				r.Delete("/{id}", h.Delete)
			})
		}

		if h := cfg.Rooms; h != nil {
			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Get("/{id}", h.Get)
				r.Delete("/{id}", h.Delete)
				r.Put("/{id}/availability", h.SetAvailability)
			})
		}

		if h := cfg.Resources; h != nil {
			r.Route("/resources", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Get("/{id}", h.Get)
				r.Delete("/{id}", h.Delete)
				r.Put("/{id}/availability", h.SetAvailability)
				r.Put("/{id}/quantity", h.UpdateQuantity)
			})
		}
	})

	return r
}

func healthHandler(check HealthChecker, responder responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
