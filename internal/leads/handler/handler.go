package handler

import (
	"net/http"
	"strconv"

	"leadrouter_backend/internal/leads/service"
	"leadrouter_backend/internal/leads/transport"
	"leadrouter_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service *service.Service
}

func New(s *service.Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:id", h.get)
	group.GET("/:id/stage-history", h.stageHistory)
	group.GET("/:id/contact-attempts", h.listAttempts)
	group.POST("/:id/contact-attempts", h.recordAttempt)
	group.POST("/:id/redistribute", h.redistribute)
	group.PATCH("/:id/stage", h.setStage)
	group.PATCH("/:id/status", h.setStatus)
}

func (h *Handler) create(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.service.Intake(c.Request.Context(), service.IntakeParams{
		ConsumerName:  req.ConsumerName,
		ConsumerPhone: req.ConsumerPhone,
		ConsumerEmail: req.ConsumerEmail,
		ProductTags:   req.ProductTags,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.IntakeResponse{
		Lead:      transport.ToLeadResponse(result.Lead),
		OwnerName: result.OwnerName,
		Escalated: result.Escalated,
		TaskID:    result.Task.ID,
		TaskDueAt: result.Task.DueAt,
	})
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	leads, err := h.service.Leads(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.LeadResponse, len(leads))
	for i, l := range leads {
		items[i] = transport.ToLeadResponse(l)
	}
	httpkit.OK(c, transport.LeadListResponse{Items: items})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}

	lead, err := h.service.Lead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) stageHistory(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}

	entries, err := h.service.StageHistory(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.StageHistoryEntryResponse, len(entries))
	for i, e := range entries {
		items[i] = transport.StageHistoryEntryResponse{Stage: e.Stage, EnteredAt: e.EnteredAt, ExitedAt: e.ExitedAt}
	}
	httpkit.OK(c, transport.StageHistoryResponse{Items: items})
}

func (h *Handler) listAttempts(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}

	attempts, err := h.service.Attempts(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.ContactAttemptResponse, len(attempts))
	for i, a := range attempts {
		items[i] = transport.ToContactAttemptResponse(a)
	}
	httpkit.OK(c, transport.ContactAttemptListResponse{Items: items})
}

func (h *Handler) recordAttempt(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}

	var req transport.RecordAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	attempt, err := h.service.RecordContactAttempt(c.Request.Context(), id, service.AttemptParams{
		Channel: req.Channel,
		Outcome: req.Outcome,
		Notes:   req.Notes,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToContactAttemptResponse(attempt))
}

func (h *Handler) redistribute(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}

	var req transport.RedistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	assignment, err := h.service.Redistribute(c.Request.Context(), id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.RedistributeResponse{
		NewOwnerID:   assignment.Member,
		NewOwnerName: assignment.Name,
		Escalated:    assignment.Escalated,
	})
}

func (h *Handler) setStage(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}

	var req transport.SetStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if httpkit.HandleError(c, h.service.SetStage(c.Request.Context(), id, req.Stage)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setStatus(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}

	var req transport.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if httpkit.HandleError(c, h.service.SetStatus(c.Request.Context(), id, req.Status)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return uuid.Nil, false
	}
	return id, true
}
