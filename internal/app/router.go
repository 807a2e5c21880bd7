package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velanet/velanet-crm/internal/billing"
	"github.com/velanet/velanet-crm/internal/clients"
	"github.com/velanet/velanet-crm/internal/equipment"
	"github.com/velanet/velanet-crm/internal/observability"
	"github.com/velanet/velanet-crm/internal/scheduling"
	"github.com/velanet/velanet-crm/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Pool              *pgxpool.Pool
	Metrics           *observability.Metrics
	BillingHandler    *billing.Handler
	ClientsHandler    *clients.Handler
	EquipmentHandler  *equipment.Handler
	SchedulingHandler *scheduling.Handler
	JobsHandler       *jobs.Handler
}

// NewRouter assembles the HTTP router with middleware and module routes.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if p.Pool != nil {
			if err := p.Pool.Ping(req.Context()); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/billing", p.BillingHandler.MountRoutes)
		r.Route("/clients", p.ClientsHandler.MountRoutes)
		r.Route("/equipment", p.EquipmentHandler.MountRoutes)
		r.Route("/visits", p.SchedulingHandler.MountRoutes)
		if p.JobsHandler != nil {
			r.Route("/jobs", p.JobsHandler.MountRoutes)
		}
	})

	return r
}
