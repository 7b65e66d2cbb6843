/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logger:     Structured request log (zerolog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Latency histogram per route (Prometheus)
  5. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/quotes/*         Booking pricing
  /api/refunds          Refund calculation
  /api/bookings/*       Per-booking history
  /api/rate-card        Pricing settings
  /api/scenarios/*      Demo bookings
  /healthz, /metrics    Operations

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/fare-engine/obs"
)

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(obs.RequestLogger{Logger: h.Logger}.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/quotes", func(r chi.Router) {
			r.Post("/", h.CreateQuote)
			r.Get("/{bookingID}", h.GetQuote)
		})

		r.Post("/refunds", h.CreateRefund)
		r.Get("/bookings/{bookingID}/refunds", h.ListRefunds)

		r.Route("/rate-card", func(r chi.Router) {
			r.Get("/", h.GetRateCard)
			r.Put("/", h.PutRateCard)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
