/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/symbols/*        Tracked symbols, statements, derived series, jobs
  /api/exports/*        Stored export batches
  /api/refresh/*        Refresh history
  /api/policies         Active aggregation policies
  /api/reset            Database reset (dev only)
  /health               Liveness probe

SECURITY NOTE:
  No authentication middleware. The EODHD token never leaves the server.

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

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/symbols", func(r chi.Router) {
			r.Get("/", h.ListSymbols)
			r.Post("/", h.TrackSymbol)

			r.Route("/{symbol}", func(r chi.Router) {
				r.Delete("/", h.UntrackSymbol)

				r.Get("/statements/{kind}", h.GetStatement)
				r.Get("/statements/{kind}/metrics/{metric}", h.GetMetric)

				r.Get("/derived", h.GetDerived)
				r.Get("/derived/{name}", h.GetDerivedSeries)

				r.Post("/refresh", h.RefreshSymbol)
				r.Post("/export", h.ExportSymbol)
				r.Get("/exports", h.ListExports)
			})
		})

		r.Get("/exports/{id}", h.GetExportValues)
		r.Get("/refresh/runs", h.ListRefreshRuns)
		r.Get("/policies", h.ListPolicies)
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
