// Package team provides the commercial-team bounded context module.
package team

import (
	apphttp "leadrouter_backend/internal/http"
	"leadrouter_backend/internal/team/handler"
	"leadrouter_backend/internal/team/repository"
	"leadrouter_backend/internal/team/service"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the team bounded context module implementing http.Module.
type Module struct {
	handler   *handler.Handler
	directory *service.Directory
}

// NewModule creates and initializes the team module with all its dependencies.
func NewModule(pool *pgxpool.Pool) *Module {
	repo := repository.New(pool)
	directory := service.NewDirectory(repo)

	return &Module{
		handler:   handler.New(directory),
		directory: directory,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "team"
}

// Directory returns the team directory for use by other modules.
func (m *Module) Directory() *service.Directory {
	return m.directory
}

// RegisterRoutes mounts team routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/team"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
