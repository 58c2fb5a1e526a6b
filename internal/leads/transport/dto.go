// Package transport defines request/response DTOs for the leads module.
package transport

import (
	"time"

	"leadrouter_backend/internal/leads/repository"

	"github.com/google/uuid"
)

type CreateLeadRequest struct {
	ConsumerName  string   `json:"consumerName" binding:"required,min=2"`
	ConsumerPhone string   `json:"consumerPhone" binding:"required"`
	ConsumerEmail *string  `json:"consumerEmail" binding:"omitempty,email"`
	ProductTags   []string `json:"productTags"`
}

type RecordAttemptRequest struct {
	Channel string  `json:"channel" binding:"required,oneof=call whatsapp email in_person"`
	Outcome string  `json:"outcome" binding:"required,oneof=answered no_answer busy scheduled refused"`
	Notes   *string `json:"notes"`
}

type RedistributeRequest struct {
	Reason string `json:"reason" binding:"required,min=3"`
}

type SetStageRequest struct {
	Stage string `json:"stage" binding:"required"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type LeadResponse struct {
	ID               uuid.UUID  `json:"id"`
	ConsumerName     string     `json:"consumerName"`
	ConsumerPhone    string     `json:"consumerPhone"`
	ConsumerEmail    *string    `json:"consumerEmail,omitempty"`
	Stage            string     `json:"stage"`
	Status           string     `json:"status"`
	OwnerID          uuid.UUID  `json:"ownerId"`
	PreviousOwnerID  *uuid.UUID `json:"previousOwnerId,omitempty"`
	ProductTags      []string   `json:"productTags"`
	PriorityElevated bool       `json:"priorityElevated"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type LeadListResponse struct {
	Items []LeadResponse `json:"items"`
}

// IntakeResponse reports the created lead together with its routing outcome.
type IntakeResponse struct {
	Lead      LeadResponse `json:"lead"`
	OwnerName string       `json:"ownerName"`
	Escalated bool         `json:"escalated"`
	TaskID    uuid.UUID    `json:"taskId"`
	TaskDueAt time.Time    `json:"taskDueAt"`
}

type RedistributeResponse struct {
	NewOwnerID   uuid.UUID `json:"newOwnerId"`
	NewOwnerName string    `json:"newOwnerName"`
	Escalated    bool      `json:"escalated"`
}

type ContactAttemptResponse struct {
	ID         uuid.UUID `json:"id"`
	LeadID     uuid.UUID `json:"leadId"`
	Channel    string    `json:"channel"`
	Outcome    string    `json:"outcome"`
	OwnerID    uuid.UUID `json:"ownerId"`
	Notes      *string   `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type ContactAttemptListResponse struct {
	Items []ContactAttemptResponse `json:"items"`
}

type StageHistoryEntryResponse struct {
	Stage     string     `json:"stage"`
	EnteredAt time.Time  `json:"enteredAt"`
	ExitedAt  *time.Time `json:"exitedAt,omitempty"`
}

type StageHistoryResponse struct {
	Items []StageHistoryEntryResponse `json:"items"`
}

// ToLeadResponse converts a repository lead to its transport shape.
func ToLeadResponse(l repository.Lead) LeadResponse {
	tags := l.ProductTags
	if tags == nil {
		tags = []string{}
	}
	return LeadResponse{
		ID:               l.ID,
		ConsumerName:     l.ConsumerName,
		ConsumerPhone:    l.ConsumerPhone,
		ConsumerEmail:    l.ConsumerEmail,
		Stage:            l.Stage,
		Status:           l.Status,
		OwnerID:          l.OwnerID,
		PreviousOwnerID:  l.PreviousOwnerID,
		ProductTags:      tags,
		PriorityElevated: l.PriorityElevated,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

// ToContactAttemptResponse converts a repository attempt.
func ToContactAttemptResponse(a repository.ContactAttempt) ContactAttemptResponse {
	return ContactAttemptResponse{
		ID:         a.ID,
		LeadID:     a.LeadID,
		Channel:    a.Channel,
		Outcome:    a.Outcome,
		OwnerID:    a.OwnerID,
		Notes:      a.Notes,
		OccurredAt: a.OccurredAt,
	}
}
