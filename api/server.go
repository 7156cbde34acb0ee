/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the workbook front end

ROUTE GROUPS:
  /api/validate             Dry-run validation
  /api/submissions          Submission and audit log
  /api/sites/{site}/*       Per-site promotion
  /api/projects/{store}     Store listings
  /api/views/{store}        Wide cost views
  /api/reporting-period     Reporting period get/set

SECURITY NOTE:
  No authentication middleware. The site in the request stands in for the
  caller's session site.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/pif/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AllowedOrigins for CORS. Empty allows the local development origins.
	AllowedOrigins []string

	// RequestLogging enables chi's request logger.
	RequestLogging bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if opts.RequestLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/validate", h.Validate)

		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", h.ListSubmissions)
			r.Post("/", h.Submit)
		})

		r.Route("/sites/{site}", func(r chi.Router) {
			r.Post("/promote", h.Promote)
		})

		r.Get("/projects/{store}", h.ListProjects)
		r.Get("/views/{store}", h.WideView)

		r.Route("/reporting-period", func(r chi.Router) {
			r.Get("/", h.GetReportingPeriod)
			r.Put("/", h.SetReportingPeriod)
		})
	})

	return r
}
