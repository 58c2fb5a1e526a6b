package monitoring

import (
	"net/http"

	apphttp "leadrouter_backend/internal/http"
	"leadrouter_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module exposes the monitoring loop's history and an operator-triggered
// tick over HTTP.
type Module struct {
	loop *Loop
}

func NewModule(loop *Loop) *Module {
	return &Module{loop: loop}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "monitoring"
}

// Loop returns the monitoring loop for the composition root and scheduler.
func (m *Module) Loop() *Loop {
	return m.loop
}

// RegisterRoutes mounts monitoring routes on the provided router context.
// Triggering a tick by hand is a director action.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/monitoring/results", m.results)
	ctx.Director.POST("/monitoring/tick", m.tick)
}

func (m *Module) results(c *gin.Context) {
	httpkit.OK(c, gin.H{"items": m.loop.Results()})
}

func (m *Module) tick(c *gin.Context) {
	result := m.loop.Tick(c.Request.Context())
	httpkit.JSON(c, http.StatusOK, result)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
