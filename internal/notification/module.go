package notification

import (
	"net/http"
	"strconv"

	"leadrouter_backend/internal/events"
	apphttp "leadrouter_backend/internal/http"
	"leadrouter_backend/internal/notification/email"
	"leadrouter_backend/internal/notification/inapp"
	"leadrouter_backend/platform/httpkit"
	"leadrouter_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is the subset of application configuration the module needs.
type Config interface {
	email.Config
	GetEmailEnabled() bool
}

// Module is the notification bounded context module implementing http.Module.
type Module struct {
	service  *inapp.Service
	notifier *Notifier
}

// NewModule creates the notification module and subscribes it to the bus.
// directory comes from the team module.
func NewModule(pool *pgxpool.Pool, directory Directory, bus events.Bus, log *logger.Logger, cfg Config) *Module {
	service := inapp.NewService(inapp.NewRepository(pool), log)

	var sender email.Sender
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(cfg, log)
	} else {
		sender = email.NewNoop(log)
	}

	notifier := NewNotifier(service, sender, directory, log)
	notifier.Subscribe(bus)

	return &Module{service: service, notifier: notifier}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts notification routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/notifications")
	group.GET("", m.list)
	group.POST("/:id/read", m.markRead)
	group.POST("/read-all", m.markAllRead)
}

func (m *Module) list(c *gin.Context) {
	userID, ok := httpkit.GetUserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}
	unreadOnly := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	notifications, unread, err := m.service.List(c.Request.Context(), userID, unreadOnly, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": notifications, "unreadCount": unread})
}

func (m *Module) markRead(c *gin.Context) {
	userID, ok := httpkit.GetUserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid notification id", nil)
		return
	}

	notification, err := m.service.MarkRead(c.Request.Context(), id, userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, notification)
}

func (m *Module) markAllRead(c *gin.Context) {
	userID, ok := httpkit.GetUserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	updated, err := m.service.MarkAllRead(c.Request.Context(), userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"updated": updated})
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
