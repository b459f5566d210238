/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/routines/*       Routine management, completions, progress
  /api/today            What is due on the current logical day
  /api/admin/*          Admin operations
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus metrics
  /                     Endpoint index

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string

	// Metrics are served on /metrics when set.
	Registry *prometheus.Registry
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/routines", func(r chi.Router) {
			r.Get("/", h.ListRoutines)
			r.Post("/", h.CreateRoutine)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRoutine)
				r.Post("/rules", h.ChangeRule)
				r.Post("/archive", h.ArchiveRoutine)
				r.Post("/completions", h.RecordCompletionNow)
				r.Put("/completions/{day}", h.RecordCompletion)
				r.Delete("/completions/{day}", h.RemoveCompletion)
				r.Get("/progress", h.GetProgress)
				r.Get("/due", h.GetDue)
			})
		})

		r.Get("/today", h.GetToday)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/warm", h.TriggerWarm)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetRoutines)
		})
	})

	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Routine Tracker</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Routine Tracker API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/routines">/api/routines</a> - List routines</li>
<li><a href="/api/today">/api/today</a> - Due today</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List scenarios</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
	})

	return r
}
