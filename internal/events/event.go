// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leadrouter_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadCreated is published when a new lead enters the pipeline.
type LeadCreated struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	OwnerID       uuid.UUID `json:"ownerId"`
	ProductTags   []string  `json:"productTags"`
	ConsumerName  string    `json:"consumerName"`
	ConsumerPhone string    `json:"consumerPhone"`
}

func (e LeadCreated) EventName() string { return "leads.created" }

// LeadAssigned is published when a lead receives its first owner.
type LeadAssigned struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	OwnerID  uuid.UUID `json:"ownerId"`
	Reason   string    `json:"reason"`
	Deadline time.Time `json:"deadline"`
}

func (e LeadAssigned) EventName() string { return "leads.assigned" }

// LeadRedistributed is published when ownership moves from one ordinary
// team member to another.
type LeadRedistributed struct {
	BaseEvent
	LeadID          uuid.UUID `json:"leadId"`
	PreviousOwnerID uuid.UUID `json:"previousOwnerId"`
	NewOwnerID      uuid.UUID `json:"newOwnerId"`
	Reason          string    `json:"reason"`
	Attempt         int       `json:"attempt"`
}

func (e LeadRedistributed) EventName() string { return "leads.redistributed" }

// LeadEscalated is published when ownership falls back to the director role,
// either because no ordinary member was available or because redistribution
// attempts were exhausted.
type LeadEscalated struct {
	BaseEvent
	LeadID          uuid.UUID `json:"leadId"`
	PreviousOwnerID uuid.UUID `json:"previousOwnerId"`
	DirectorID      uuid.UUID `json:"directorId"`
	Reason          string    `json:"reason"`
}

func (e LeadEscalated) EventName() string { return "leads.escalated" }

// ContactAttemptLogged is published when a contact attempt is recorded.
type ContactAttemptLogged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	AttemptID uuid.UUID `json:"attemptId"`
	Channel   string    `json:"channel"`
	Outcome   string    `json:"outcome"`
}

func (e ContactAttemptLogged) EventName() string { return "leads.contact_attempt.logged" }

// =============================================================================
// Task Domain Events
// =============================================================================

// TaskCreated is published when a follow-up obligation is opened.
type TaskCreated struct {
	BaseEvent
	TaskID     uuid.UUID `json:"taskId"`
	LeadID     uuid.UUID `json:"leadId"`
	Kind       string    `json:"kind"`
	AssignedTo uuid.UUID `json:"assignedTo"`
	DueAt      time.Time `json:"dueAt"`
}

func (e TaskCreated) EventName() string { return "tasks.created" }

// TaskCompleted is published when a pending task is closed normally.
type TaskCompleted struct {
	BaseEvent
	TaskID  uuid.UUID `json:"taskId"`
	LeadID  uuid.UUID `json:"leadId"`
	Kind    string    `json:"kind"`
	Outcome string    `json:"outcome"`
}

func (e TaskCompleted) EventName() string { return "tasks.completed" }

// TaskExpired is published when a pending task passes its deadline without
// being worked.
type TaskExpired struct {
	BaseEvent
	TaskID     uuid.UUID `json:"taskId"`
	LeadID     uuid.UUID `json:"leadId"`
	Kind       string    `json:"kind"`
	AssignedTo uuid.UUID `json:"assignedTo"`
}

func (e TaskExpired) EventName() string { return "tasks.expired" }

// =============================================================================
// Escalation Domain Events
// =============================================================================

// DirectorAlertRaised is published when the escalation advisor opens a new
// director-facing alert.
type DirectorAlertRaised struct {
	BaseEvent
	AlertID  uuid.UUID `json:"alertId"`
	Type     string    `json:"type"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
}

func (e DirectorAlertRaised) EventName() string { return "escalation.alert.raised" }

// RuleNotificationRaised is published when a reschedule rule's notify action
// fires for one lead. The notification module turns it into in-app and email
// delivery; delivery failures never reach the rule engine.
type RuleNotificationRaised struct {
	BaseEvent
	RuleID  string    `json:"ruleId"`
	LeadID  uuid.UUID `json:"leadId"`
	OwnerID uuid.UUID `json:"ownerId"`
	Message string    `json:"message"`
}

func (e RuleNotificationRaised) EventName() string { return "rules.notification.raised" }

// RuleExecutionCompleted is published after a reschedule rule finishes a
// batch run, successful or not.
type RuleExecutionCompleted struct {
	BaseEvent
	RuleID     string `json:"ruleId"`
	Candidates int    `json:"candidates"`
	Successes  int    `json:"successes"`
	Failures   int    `json:"failures"`
}

func (e RuleExecutionCompleted) EventName() string { return "rules.execution.completed" }
