package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/hosting-billing/internal/api/handler"
	mw "github.com/edvin/hosting-billing/internal/api/middleware"
	"github.com/edvin/hosting-billing/internal/billing"
)

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Deps are the collaborators the admin API drives.
type Deps struct {
	AdminAPIKey string

	Cache handler.CacheAdmin
	Queue handler.QueueAdmin

	BillingConfig billing.ConfigSource
	// ConfigSaver is nil when the billing config is file-managed.
	ConfigSaver handler.ConfigSaver
	Scheduler   handler.CycleScheduler

	Resources handler.ResourceLookup
	Status    handler.StatusReader
	Manager   handler.ResourceManager
	Ledger    handler.OwnerLedger

	ReadyChecks []Check
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	deps   Deps
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(mw.APIKey(s.deps.AdminAPIKey))

		ops := handler.NewOps(s.deps.Cache, s.deps.Queue)
		r.Get("/stats", ops.Stats)
		r.Post("/cache/clear", ops.ClearCache)
		r.Post("/cache/invalidate", ops.InvalidateCache)
		r.Get("/circuits", ops.Circuits)
		r.Post("/queue/pause", ops.PauseQueue)
		r.Post("/queue/resume", ops.ResumeQueue)

		bill := handler.NewBilling(s.deps.BillingConfig, s.deps.ConfigSaver, s.deps.Scheduler)
		r.Get("/billing/config", bill.GetConfig)
		r.Put("/billing/config", bill.UpdateConfig)
		r.Post("/billing/run", bill.Run)

		res := handler.NewResource(s.deps.Resources, s.deps.Status, s.deps.Manager)
		r.Get("/resources/{id}/status", res.Status)
		r.Post("/resources/{id}/suspend", res.Suspend)
		r.Post("/resources/{id}/unsuspend", res.Unsuspend)

		owner := handler.NewOwner(s.deps.Ledger)
		r.Post("/owners/{id}/credit", owner.Credit)
		r.Get("/owners/{id}/ledger", owner.Ledger)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.ReadyChecks))
	healthy := true
	for _, c := range s.deps.ReadyChecks {
		if err := c.Fn(ctx); err != nil {
			checks[c.Name] = err.Error()
			healthy = false
			continue
		}
		checks[c.Name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Routes lists the registered method and pattern pairs.
func (s *Server) Routes() []string {
	var out []string
	chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		out = append(out, method+" "+route)
		return nil
	})
	sort.Strings(out)
	return out
}
