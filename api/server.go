/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logging:    Structured request log (zap)
  4. Metrics:    Prometheus request counters and latency
  5. Recoverer:  Panic recovery (500 instead of crash)
  6. CORS:       Cross-origin requests for a browser frontend

ROUTE GROUPS:
  /api/loans/*          Loans, interest quotes, allocation history
  /api/payments/*       Multi-loan payments and previews
  /api/policies/*       Policy templates and rate classification
  /api/scenarios/*      Demo scenarios
  /healthz              Liveness + store ping
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/debt-ledger/logging"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(h.Logger))
	r.Use(h.Metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Method("GET", "/metrics", h.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.Post("/", h.CreateLoan)
			r.Get("/{id}", h.GetLoan)
			r.Get("/{id}/interest", h.GetInterest)
			r.Get("/{id}/allocations", h.GetAllocations)
			r.Post("/{id}/payments", h.PayLoan)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.ApplyPayment)
			r.Post("/preview", h.PreviewPayment)
		})

		// Policy template routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Post("/classify", h.ClassifyPolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Delete("/{id}", h.DeletePolicy)
		})

		// Admin routes
		r.Post("/admin/refresh-statuses", h.RefreshStatuses)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
