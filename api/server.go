/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK (outermost first):
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address from X-Forwarded-For / X-Real-IP
  3. RequestLogger: zap line per request
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the frontend
  6. Identity:      X-Employee-ID into the request context
  7. RateLimit:     Token bucket per client IP

ROUTE GROUPS:
  /api/employees/*  Directory, balance, ledger history, leave lists, exports
  /api/managers/*   Approval queue
  /api/leaves/*     Request, dry-run validation, decision, deletion
  /api/scenarios/*  Demo data

SECURITY NOTE:
  The identity header is trusted as-is. Authentication belongs to the
  identity provider in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Identity, logging and rate limiting
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/leave-engine/config"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg config.ServerConfig, logger *zap.Logger) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", IdentityHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(Identity)
	r.Use(RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/leaves", h.ListLeaves)
			r.Get("/{id}/leaves.ics", h.ExportICS)
			r.Get("/{id}/leaves.xlsx", h.ExportXLSX)
		})

		r.Get("/managers/{id}/pending", h.ListPending)

		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.CreateLeave)
			r.Post("/validate", h.ValidateLeave)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Delete("/{id}", h.DeleteLeave)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
