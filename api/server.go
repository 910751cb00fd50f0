/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/messages          Raw chat message webhook (transport integration)
  /api/checkin,
  /api/checkout,
  /api/reports/*         Pre-classified action endpoints
  /api/subjects/*        Status and counter queries
  /api/healthz           Liveness probe

SECURITY NOTE:
  No authentication middleware; the transport in front of this service is
  trusted and identifies subjects itself.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", h.HandleMessage)

		r.Post("/checkin", h.CheckIn)
		r.Post("/checkout", h.CheckOut)
		r.Route("/reports", func(r chi.Router) {
			r.Post("/", h.StartReport)
			r.Post("/return", h.EndReport)
		})

		r.Route("/subjects/{chatID}/{userID}", func(r chi.Router) {
			r.Get("/status", h.GetStatus)
			r.Get("/counters", h.GetCounters)
		})

		r.Get("/healthz", h.Health)
	})

	return r
}
