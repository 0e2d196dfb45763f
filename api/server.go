/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the reviewer UI

ROUTE GROUPS:
  /api/employees/*   Employee reads, forecasts, suspension lift
  /api/forecasts/*   Bulk forecast refresh
  /api/leaves/*      Leave queries, return registration, overlaps, evaluation
  /api/policies      Tier table
  /api/penalties/*   Penalty review
  /api/payroll/*     Payroll bridge
  /api/scheduler/*   Manual run and run history
  /api/scenarios/*   Demo scenarios
  /healthz           Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/next-leave", h.GetNextLeave)
			r.Post("/{id}/lift", h.LiftSuspension)
		})

		r.Post("/forecasts/refresh", h.RefreshForecasts)

		r.Route("/leaves", func(r chi.Router) {
			r.Get("/on-leave", h.CurrentlyOnLeave)
			r.Get("/awaiting-return", h.AwaitingReturn)
			r.Get("/overdue", h.Overdue)
			r.Get("/overlaps", h.ListOverlaps)
			r.Post("/overlaps/resolve", h.ResolveOverlaps)
			r.Post("/{id}/return", h.RegisterReturn)
			r.Post("/{id}/evaluate", h.EvaluateLeave)
		})

		r.Get("/policies", h.ListPolicies)

		r.Route("/penalties", func(r chi.Router) {
			r.Get("/", h.ListPenalties)
			r.Get("/{id}", h.GetPenalty)
			r.Post("/{id}/approve", h.ApprovePenalty)
			r.Post("/{id}/cancel", h.CancelPenalty)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Get("/deductions", h.PendingDeductions)
			r.Post("/penalties/{id}/apply", h.ApplyDeduction)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/run", h.TriggerRun)
			r.Get("/runs", h.ListRuns)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
