// Package transport defines request/response DTOs for the tasks module.
package transport

import (
	"time"

	"leadrouter_backend/internal/tasks/repository"

	"github.com/google/uuid"
)

type CompleteTaskRequest struct {
	Outcome string  `json:"outcome" binding:"required,oneof=answered no_answer busy scheduled refused"`
	Channel string  `json:"channel" binding:"omitempty,oneof=call whatsapp email in_person"`
	Notes   *string `json:"notes"`
}

type ReassignTaskRequest struct {
	AssigneeID uuid.UUID `json:"assigneeId" binding:"required"`
}

type TaskResponse struct {
	ID                        uuid.UUID  `json:"id"`
	LeadID                    uuid.UUID  `json:"leadId"`
	Title                     string     `json:"title"`
	Description               *string    `json:"description,omitempty"`
	Kind                      string     `json:"kind"`
	Status                    string     `json:"status"`
	AssignedTo                uuid.UUID  `json:"assignedTo"`
	CreatedAt                 time.Time  `json:"createdAt"`
	DueAt                     time.Time  `json:"dueAt"`
	CompletedAt               *time.Time `json:"completedAt,omitempty"`
	Outcome                   *string    `json:"outcome,omitempty"`
	Note                      *string    `json:"note,omitempty"`
	RedistributionAttempts    int        `json:"redistributionAttempts"`
	MaxRedistributionAttempts int        `json:"maxRedistributionAttempts"`
}

type TaskListResponse struct {
	Items []TaskResponse `json:"items"`
}

// ReassignTaskResponse reports the outcome of a manual reassignment. When
// EscalationRequired is set the task kept its previous assignee; the lead
// must go to the director instead.
type ReassignTaskResponse struct {
	Task               TaskResponse `json:"task"`
	EscalationRequired bool         `json:"escalationRequired"`
}

// ToTaskResponse converts a repository task to its transport shape.
func ToTaskResponse(t repository.Task) TaskResponse {
	return TaskResponse{
		ID:                        t.ID,
		LeadID:                    t.LeadID,
		Title:                     t.Title,
		Description:               t.Description,
		Kind:                      t.Kind,
		Status:                    t.Status,
		AssignedTo:                t.AssignedTo,
		CreatedAt:                 t.CreatedAt,
		DueAt:                     t.DueAt,
		CompletedAt:               t.CompletedAt,
		Outcome:                   t.Outcome,
		Note:                      t.Note,
		RedistributionAttempts:    t.RedistributionAttempts,
		MaxRedistributionAttempts: t.MaxRedistributionAttempts,
	}
}

// ToTaskListResponse converts a slice of tasks.
func ToTaskListResponse(tasks []repository.Task) TaskListResponse {
	items := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		items[i] = ToTaskResponse(t)
	}
	return TaskListResponse{Items: items}
}
