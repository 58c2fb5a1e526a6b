package handler

import (
	"errors"
	"net/http"

	"leadrouter_backend/internal/tasks/ledger"
	"leadrouter_backend/internal/tasks/transport"
	"leadrouter_backend/platform/apperr"
	"leadrouter_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	ledger *ledger.Ledger
}

func New(l *ledger.Ledger) *Handler {
	return &Handler{ledger: l}
}

func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.POST("/:id/complete", h.complete)
	group.POST("/:id/reassign", h.reassign)
}

func (h *Handler) list(c *gin.Context) {
	leadID, err := uuid.Parse(c.Query("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "leadId query parameter is required", nil)
		return
	}

	items, err := h.ledger.TasksForLead(c.Request.Context(), leadID)
	if handleLedgerError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToTaskListResponse(items))
}

func (h *Handler) get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid task id", nil)
		return
	}

	task, err := h.ledger.Task(c.Request.Context(), id)
	if handleLedgerError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToTaskResponse(task))
}

func (h *Handler) complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid task id", nil)
		return
	}

	var req transport.CompleteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	task, err := h.ledger.CompleteTask(c.Request.Context(), id, ledger.CompleteTaskParams{
		Outcome: req.Outcome,
		Channel: req.Channel,
		Notes:   req.Notes,
	})
	if handleLedgerError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToTaskResponse(task))
}

func (h *Handler) reassign(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid task id", nil)
		return
	}

	var req transport.ReassignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	task, escalate, err := h.ledger.Reassign(c.Request.Context(), id, req.AssigneeID)
	if handleLedgerError(c, err) {
		return
	}
	httpkit.OK(c, transport.ReassignTaskResponse{
		Task:               transport.ToTaskResponse(task),
		EscalationRequired: escalate,
	})
}

// handleLedgerError maps ledger sentinels onto API error kinds before the
// generic handler takes over.
func handleLedgerError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ledger.ErrNotFound):
		return httpkit.HandleError(c, apperr.NotFound("task not found"))
	case errors.Is(err, ledger.ErrDuplicatePending):
		return httpkit.HandleError(c, apperr.Conflict("a pending task of this kind already exists for the lead"))
	case errors.Is(err, ledger.ErrInvalidTransition):
		return httpkit.HandleError(c, apperr.Conflict("task is not pending"))
	default:
		return httpkit.HandleError(c, err)
	}
}
