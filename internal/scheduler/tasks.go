// Package scheduler enqueues and processes delayed background jobs backed by
// Redis. Its one job type is the contact-deadline check fired when an
// initial-contact task's deadline passes.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskContactDeadline = "leads.contact.deadline"

type ContactDeadlinePayload struct {
	LeadID string `json:"leadId"`
}

func NewContactDeadlineTask(payload ContactDeadlinePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskContactDeadline, data), nil
}

func ParseContactDeadlinePayload(task *asynq.Task) (ContactDeadlinePayload, error) {
	var payload ContactDeadlinePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ContactDeadlinePayload{}, err
	}
	return payload, nil
}
