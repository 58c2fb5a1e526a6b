package handler

import (
	"net/http"

	"leadrouter_backend/internal/team/repository"
	"leadrouter_backend/internal/team/service"
	"leadrouter_backend/internal/team/transport"
	"leadrouter_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	directory *service.Directory
}

func New(directory *service.Directory) *Handler {
	return &Handler{directory: directory}
}

func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/utilization", h.utilization)
	group.GET("/:id", h.get)
	group.PATCH("/:id", h.update)
}

func (h *Handler) list(c *gin.Context) {
	members, err := h.directory.Members(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.MemberResponse, len(members))
	for i, m := range members {
		items[i] = transport.ToMemberResponse(m)
	}
	httpkit.OK(c, transport.MemberListResponse{Items: items})
}

func (h *Handler) get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid member id", nil)
		return
	}

	member, err := h.directory.Member(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToMemberResponse(member))
}

func (h *Handler) create(c *gin.Context) {
	var req transport.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	member, err := h.directory.CreateMember(c.Request.Context(), repository.CreateMemberParams{
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		Capacity:     req.Capacity,
		PriorityRank: req.PriorityRank,
		Specialties:  req.Specialties,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToMemberResponse(member))
}

func (h *Handler) update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid member id", nil)
		return
	}

	var req transport.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	member, err := h.directory.UpdateMember(c.Request.Context(), id, repository.UpdateMemberParams{
		Name:         req.Name,
		Active:       req.Active,
		Capacity:     req.Capacity,
		PriorityRank: req.PriorityRank,
		Specialties:  req.Specialties,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToMemberResponse(member))
}

func (h *Handler) utilization(c *gin.Context) {
	ratio, active, capacity, err := h.directory.Utilization(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.UtilizationResponse{Ratio: ratio, Active: active, Capacity: capacity})
}
