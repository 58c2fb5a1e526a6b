// Package leads provides the lead bounded context module.
package leads

import (
	"time"

	"leadrouter_backend/internal/events"
	apphttp "leadrouter_backend/internal/http"
	"leadrouter_backend/internal/leads/handler"
	"leadrouter_backend/internal/leads/repository"
	"leadrouter_backend/internal/leads/service"
	"leadrouter_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the leads module. router and ledger come
// from the distribution and tasks modules; scheduler may be nil when no
// deadline scheduling backend is wired.
func NewModule(
	pool *pgxpool.Pool,
	router service.Router,
	ledger service.TaskLedger,
	scheduler service.DeadlineScheduler,
	bus events.Bus,
	log *logger.Logger,
	cfg service.Config,
	now func() time.Time,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, router, ledger, scheduler, bus, log, cfg, now)

	return &Module{
		handler: handler.New(svc),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the lead service for use by other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the lead repository; the distribution engine uses it as
// its owner store and the monitoring loop as its lead source.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
