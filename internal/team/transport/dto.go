// Package transport defines request/response DTOs for the team module.
package transport

import (
	"time"

	"leadrouter_backend/internal/team/repository"

	"github.com/google/uuid"
)

type CreateMemberRequest struct {
	Name         string   `json:"name" binding:"required,min=2"`
	Email        string   `json:"email" binding:"required,email"`
	Role         string   `json:"role" binding:"omitempty,oneof=agent director"`
	Capacity     int      `json:"capacity" binding:"required,gt=0"`
	PriorityRank int      `json:"priorityRank" binding:"gte=0"`
	Specialties  []string `json:"specialties"`
}

type UpdateMemberRequest struct {
	Name         *string  `json:"name" binding:"omitempty,min=2"`
	Active       *bool    `json:"active"`
	Capacity     *int     `json:"capacity" binding:"omitempty,gt=0"`
	PriorityRank *int     `json:"priorityRank" binding:"omitempty,gte=0"`
	Specialties  []string `json:"specialties"`
}

type MemberResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	Active          bool      `json:"active"`
	Capacity        int       `json:"capacity"`
	ActiveLeadCount int       `json:"activeLeadCount"`
	PriorityRank    int       `json:"priorityRank"`
	Specialties     []string  `json:"specialties"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type MemberListResponse struct {
	Items []MemberResponse `json:"items"`
}

type UtilizationResponse struct {
	Ratio    float64 `json:"ratio"`
	Active   int     `json:"active"`
	Capacity int     `json:"capacity"`
}

// ToMemberResponse converts a repository member to its transport shape.
func ToMemberResponse(m repository.Member) MemberResponse {
	specialties := m.Specialties
	if specialties == nil {
		specialties = []string{}
	}
	return MemberResponse{
		ID:              m.ID,
		Name:            m.Name,
		Email:           m.Email,
		Role:            m.Role,
		Active:          m.Active,
		Capacity:        m.Capacity,
		ActiveLeadCount: m.ActiveLeadCount,
		PriorityRank:    m.PriorityRank,
		Specialties:     specialties,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
