package escalation

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"leadrouter_backend/internal/events"
	apphttp "leadrouter_backend/internal/http"
	"leadrouter_backend/platform/apperr"
	"leadrouter_backend/platform/httpkit"
	"leadrouter_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the escalation bounded context module implementing http.Module.
type Module struct {
	advisor *Advisor
	store   *Repository
	now     func() time.Time
}

// NewModule creates and initializes the escalation module. team and tasks
// come from the team and tasks modules.
func NewModule(pool *pgxpool.Pool, team TeamView, tasks TaskView, bus events.Bus, log *logger.Logger, cfg Config, now func() time.Time) *Module {
	if now == nil {
		now = time.Now
	}
	store := NewRepository(pool)
	return &Module{
		advisor: NewAdvisor(store, team, tasks, bus, log, cfg, now),
		store:   store,
		now:     now,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "escalation"
}

// Advisor returns the escalation advisor for the monitoring loop.
func (m *Module) Advisor() *Advisor {
	return m.advisor
}

// RegisterRoutes mounts alert routes on the provided router context. Alerts
// are director-facing.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Director.Group("/alerts")
	group.GET("", m.list)
	group.GET("/recommendations", m.recommendations)
	group.POST("/:id/resolve", m.resolve)
}

func (m *Module) list(c *gin.Context) {
	unresolvedOnly := c.DefaultQuery("unresolved", "true") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	alerts, err := m.store.List(c.Request.Context(), unresolvedOnly, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": alerts})
}

func (m *Module) resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid alert id", nil)
		return
	}

	alert, err := m.store.Resolve(c.Request.Context(), id, m.now())
	if errors.Is(err, ErrNotFound) {
		// Either unknown or already resolved; disambiguate for the caller.
		if _, getErr := m.store.GetByID(c.Request.Context(), id); getErr == nil {
			httpkit.HandleError(c, apperr.Conflict("alert is already resolved"))
		} else {
			httpkit.HandleError(c, apperr.NotFound("alert not found"))
		}
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, alert)
}

func (m *Module) recommendations(c *gin.Context) {
	recommendations, err := m.advisor.Recommendations(c.Request.Context(), m.now())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": recommendations})
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
