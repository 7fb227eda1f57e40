package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sudandp/paradigm-ifs-sub000/internal/finance"
	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/cache"
	"github.com/sudandp/paradigm-ifs-sub000/internal/rbac"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
	"github.com/sudandp/paradigm-ifs-sub000/internal/sites"
)

// FinanceDeps are the shared handles both binaries build the finance
// service from.
type FinanceDeps struct {
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics finance.PurgeCounter
}

// FinanceComponents is the wired finance stack.
type FinanceComponents struct {
	Policy    *rbac.Policy
	Directory *sites.Directory
	Audit     *shared.AuditLogger
	Service   *finance.Service
}

// NewFinance wires the site directory, role policy, audit trail and finance
// service against Postgres and Redis.
func NewFinance(deps FinanceDeps) FinanceComponents {
	policy := rbac.NewPolicy(deps.Config.PolicyConfig())
	siteCache := cache.NewVersioned(deps.Redis, "sites", deps.Config.SiteCacheTTL)
	directory := sites.NewDirectory(sites.NewRepository(deps.Pool), siteCache, deps.Logger.With(slog.String("component", "sites")))
	audit := shared.NewAuditLogger(deps.Pool)
	service := finance.NewService(finance.NewRepository(deps.Pool), directory, policy, audit, finance.ServiceConfig{
		Retention: deps.Config.FinanceRetention,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
	})
	return FinanceComponents{Policy: policy, Directory: directory, Audit: audit, Service: service}
}
