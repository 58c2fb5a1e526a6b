// Package tasks provides the follow-up task bounded context module.
package tasks

import (
	"context"
	"time"

	"leadrouter_backend/internal/events"
	apphttp "leadrouter_backend/internal/http"
	leadsrepo "leadrouter_backend/internal/leads/repository"
	"leadrouter_backend/internal/tasks/handler"
	"leadrouter_backend/internal/tasks/ledger"
	"leadrouter_backend/internal/tasks/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is the subset of application configuration the module needs.
type Config interface {
	GetMaxRedistributionAttempts() int
}

// Module is the tasks bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	ledger  *ledger.Ledger
}

// NewModule creates and initializes the tasks module. now may be nil for
// wall-clock time.
func NewModule(pool *pgxpool.Pool, bus events.Bus, cfg Config, now func() time.Time) *Module {
	repo := repository.New(pool)
	attempts := &attemptRecorder{leads: leadsrepo.New(pool)}
	l := ledger.New(repo, attempts, bus, cfg.GetMaxRedistributionAttempts(), now)

	return &Module{
		handler: handler.New(l),
		ledger:  l,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "tasks"
}

// Ledger returns the task ledger for use by other modules.
func (m *Module) Ledger() *ledger.Ledger {
	return m.ledger
}

// RegisterRoutes mounts task routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/tasks"))
}

// attemptRecorder bridges the ledger's contact bookkeeping onto the leads
// contact-attempt log.
type attemptRecorder struct {
	leads *leadsrepo.Repository
}

func (r *attemptRecorder) RecordAttempt(ctx context.Context, leadID, ownerID uuid.UUID, channel, outcome string, notes *string, at time.Time) error {
	_, err := r.leads.RecordAttempt(ctx, leadsrepo.AppendAttemptParams{
		LeadID:     leadID,
		Channel:    channel,
		Outcome:    outcome,
		OwnerID:    ownerID,
		Notes:      notes,
		OccurredAt: at,
	})
	return err
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
