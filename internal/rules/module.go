package rules

import (
	"net/http"
	"strconv"

	apphttp "leadrouter_backend/internal/http"
	"leadrouter_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module exposes the rule engine and its execution history over HTTP.
type Module struct {
	engine *Engine
	store  *Repository
}

func NewModule(engine *Engine, store *Repository) *Module {
	return &Module{engine: engine, store: store}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "rules"
}

// Engine returns the rule engine for the monitoring loop.
func (m *Module) Engine() *Engine {
	return m.engine
}

// RegisterRoutes mounts rule routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/rules")
	group.GET("", m.list)
	group.GET("/executions", m.executions)
}

func (m *Module) list(c *gin.Context) {
	httpkit.OK(c, gin.H{"items": m.engine.Rules()})
}

func (m *Module) executions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	executions, err := m.store.ListRecent(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusOK, gin.H{"items": executions})
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
