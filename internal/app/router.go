package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sudandp/paradigm-ifs-sub000/internal/auth"
	"github.com/sudandp/paradigm-ifs-sub000/internal/finance"
	"github.com/sudandp/paradigm-ifs-sub000/internal/observability"
	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/httpx"
	"github.com/sudandp/paradigm-ifs-sub000/internal/rbac"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
	"github.com/sudandp/paradigm-ifs-sub000/internal/sites"
	"github.com/sudandp/paradigm-ifs-sub000/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	AuthHandler    *auth.Handler
	SitesHandler   *sites.Handler
	FinanceHandler *finance.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// Ready reports dependency health for /healthz. Nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.SitesHandler != nil {
		r.Route("/sites", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireActor)
			params.SitesHandler.MountRoutes(r)
		})
	}
	if params.FinanceHandler != nil {
		r.Route("/finance/records", params.FinanceHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
