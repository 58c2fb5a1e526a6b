// Package service orchestrates the lead lifecycle: intake with automatic
// distribution, contact-attempt logging, manual redistribution, and
// terminal-status handling.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadrouter_backend/internal/distribution"
	"leadrouter_backend/internal/events"
	"leadrouter_backend/internal/leads/domain"
	"leadrouter_backend/internal/leads/repository"
	"leadrouter_backend/internal/tasks/ledger"
	taskrepo "leadrouter_backend/internal/tasks/repository"
	"leadrouter_backend/platform/apperr"
	"leadrouter_backend/platform/logger"
	"leadrouter_backend/platform/phone"

	"github.com/google/uuid"
)

// Store defines the data access interface needed by the lead service.
type Store interface {
	Create(ctx context.Context, p repository.CreateLeadParams) (repository.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	List(ctx context.Context, limit int) ([]repository.Lead, error)
	UpdateStatus(ctx context.Context, leadID uuid.UUID, status string) error
	SetStage(ctx context.Context, leadID uuid.UUID, stage string, at time.Time) error
	StageHistory(ctx context.Context, leadID uuid.UUID) ([]repository.StageHistoryEntry, error)
	RecordAttempt(ctx context.Context, p repository.AppendAttemptParams) (repository.ContactAttempt, error)
	ListAttempts(ctx context.Context, leadID uuid.UUID) ([]repository.ContactAttempt, error)
}

// Router is the distribution surface the service drives.
type Router interface {
	PickForIntake(ctx context.Context, lead distribution.LeadRef) (distribution.Assignment, error)
	ReleaseIntake(ctx context.Context, memberID uuid.UUID) error
	LockLead(leadID uuid.UUID) func()
	RedistributeLocked(ctx context.Context, lead distribution.LeadRef, reason string) (distribution.Assignment, error)
}

// TaskLedger opens and reassigns follow-up tasks on behalf of the lead.
// Satisfied by *ledger.Ledger.
type TaskLedger interface {
	CreateTask(ctx context.Context, p ledger.CreateTaskParams) (taskrepo.Task, error)
	PendingForLead(ctx context.Context, leadID uuid.UUID) ([]taskrepo.Task, error)
	Reassign(ctx context.Context, taskID uuid.UUID, newAssignee uuid.UUID) (taskrepo.Task, bool, error)
}

// DeadlineScheduler schedules a one-shot deadline check for a fresh
// initial-contact task. Scheduling failures are logged, never fatal: the
// periodic monitoring loop is the safety net.
type DeadlineScheduler interface {
	ScheduleContactDeadline(ctx context.Context, leadID uuid.UUID, dueAt time.Time) error
}

// Config is the subset of application configuration the service needs.
type Config interface {
	GetInitialContactTTL() time.Duration
}

type IntakeParams struct {
	ConsumerName  string
	ConsumerPhone string
	ConsumerEmail *string
	ProductTags   []string
}

type AttemptParams struct {
	Channel string
	Outcome string
	Notes   *string
}

// IntakeResult reports what intake produced, including whether the lead
// landed on the director for lack of ordinary capacity.
type IntakeResult struct {
	Lead      repository.Lead
	OwnerName string
	Escalated bool
	Task      taskrepo.Task
}

type Service struct {
	store     Store
	router    Router
	ledger    TaskLedger
	scheduler DeadlineScheduler
	bus       events.Bus
	log       *logger.Logger
	cfg       Config
	now       func() time.Time
}

func New(store Store, router Router, ledger TaskLedger, scheduler DeadlineScheduler, bus events.Bus, log *logger.Logger, cfg Config, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     store,
		router:    router,
		ledger:    ledger,
		scheduler: scheduler,
		bus:       bus,
		log:       log,
		cfg:       cfg,
		now:       now,
	}
}

// Intake creates a lead, assigns an owner through the distribution engine,
// and opens the initial-contact task with its deadline. The capacity
// reservation is released if the insert fails, so a failed intake leaves no
// trace in the counters.
func (s *Service) Intake(ctx context.Context, p IntakeParams) (IntakeResult, error) {
	normalized, err := phone.NormalizeE164(p.ConsumerPhone)
	if err != nil {
		return IntakeResult{}, apperr.Validation("invalid consumer phone number")
	}

	assignment, err := s.router.PickForIntake(ctx, distribution.LeadRef{ProductTags: p.ProductTags})
	if errors.Is(err, distribution.ErrCapacityExhausted) {
		return IntakeResult{}, apperr.Unprocessable("no team member or director has capacity for a new lead")
	}
	if err != nil {
		return IntakeResult{}, err
	}

	lead, err := s.store.Create(ctx, repository.CreateLeadParams{
		ConsumerName:  p.ConsumerName,
		ConsumerPhone: normalized,
		ConsumerEmail: p.ConsumerEmail,
		ProductTags:   p.ProductTags,
		OwnerID:       assignment.Member,
	})
	if err != nil {
		if releaseErr := s.router.ReleaseIntake(ctx, assignment.Member); releaseErr != nil {
			s.log.Error("failed to release intake reservation", "memberId", assignment.Member, "error", releaseErr)
		}
		return IntakeResult{}, fmt.Errorf("create lead: %w", err)
	}

	dueAt := s.now().Add(s.cfg.GetInitialContactTTL())
	task, err := s.ledger.CreateTask(ctx, ledger.CreateTaskParams{
		LeadID:     lead.ID,
		Title:      "Make initial contact with " + lead.ConsumerName,
		Kind:       taskrepo.KindInitialContact,
		AssignedTo: assignment.Member,
		DueAt:      dueAt,
	})
	if err != nil {
		return IntakeResult{}, fmt.Errorf("open initial-contact task: %w", err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleContactDeadline(ctx, lead.ID, dueAt); err != nil {
			s.log.Error("failed to schedule contact deadline check", "leadId", lead.ID, "error", err)
		}
	}

	s.log.AssignmentEvent("assigned", lead.ID.String(), assignment.Member.String(), assignment.Escalated)

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent:     events.NewBaseEvent(),
			LeadID:        lead.ID,
			OwnerID:       assignment.Member,
			ProductTags:   lead.ProductTags,
			ConsumerName:  lead.ConsumerName,
			ConsumerPhone: lead.ConsumerPhone,
		})
		s.bus.Publish(ctx, events.LeadAssigned{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			OwnerID:   assignment.Member,
			Reason:    "intake",
			Deadline:  dueAt,
		})
		if assignment.Escalated {
			s.bus.Publish(ctx, events.LeadEscalated{
				BaseEvent:  events.NewBaseEvent(),
				LeadID:     lead.ID,
				DirectorID: assignment.Member,
				Reason:     "no team member available at intake",
			})
		}
	}

	return IntakeResult{Lead: lead, OwnerName: assignment.Name, Escalated: assignment.Escalated, Task: task}, nil
}

// Lead returns a single lead by id.
func (s *Service) Lead(ctx context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

// Leads lists recent leads.
func (s *Service) Leads(ctx context.Context, limit int) ([]repository.Lead, error) {
	return s.store.List(ctx, limit)
}

// StageHistory returns the lead's pipeline trajectory.
func (s *Service) StageHistory(ctx context.Context, leadID uuid.UUID) ([]repository.StageHistoryEntry, error) {
	if _, err := s.Lead(ctx, leadID); err != nil {
		return nil, err
	}
	return s.store.StageHistory(ctx, leadID)
}

// Attempts returns the lead's contact history, newest first.
func (s *Service) Attempts(ctx context.Context, leadID uuid.UUID) ([]repository.ContactAttempt, error) {
	if _, err := s.Lead(ctx, leadID); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, leadID)
}

// RecordContactAttempt appends an attempt to the lead's log. Reached
// outcomes move the lead to in-contact status inside the same write.
func (s *Service) RecordContactAttempt(ctx context.Context, leadID uuid.UUID, p AttemptParams) (repository.ContactAttempt, error) {
	lead, err := s.Lead(ctx, leadID)
	if err != nil {
		return repository.ContactAttempt{}, err
	}
	if domain.IsTerminalStatus(lead.Status) {
		return repository.ContactAttempt{}, apperr.Conflict("lead is already closed")
	}

	attempt, err := s.store.RecordAttempt(ctx, repository.AppendAttemptParams{
		LeadID:     leadID,
		Channel:    p.Channel,
		Outcome:    p.Outcome,
		OwnerID:    lead.OwnerID,
		Notes:      p.Notes,
		OccurredAt: s.now(),
	})
	if err != nil {
		return repository.ContactAttempt{}, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.ContactAttemptLogged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			AttemptID: attempt.ID,
			Channel:   attempt.Channel,
			Outcome:   attempt.Outcome,
		})
	}
	return attempt, nil
}

// Redistribute moves the lead to a new owner on operator request. It holds
// the same per-lead token the monitoring loop uses, so manual and automatic
// redistribution of one lead cannot interleave. Pending tasks follow the
// lead to its new owner.
func (s *Service) Redistribute(ctx context.Context, leadID uuid.UUID, reason string) (distribution.Assignment, error) {
	lead, err := s.Lead(ctx, leadID)
	if err != nil {
		return distribution.Assignment{}, err
	}
	if domain.IsTerminalStatus(lead.Status) {
		return distribution.Assignment{}, apperr.Conflict("lead is already closed")
	}

	unlock := s.router.LockLead(leadID)
	defer unlock()

	assignment, err := s.router.RedistributeLocked(ctx, distribution.LeadRef{
		ID:               lead.ID,
		OwnerID:          lead.OwnerID,
		ProductTags:      lead.ProductTags,
		PriorityElevated: lead.PriorityElevated,
	}, reason)
	if errors.Is(err, distribution.ErrCapacityExhausted) {
		return distribution.Assignment{}, apperr.Unprocessable("no team member or director has capacity for this lead")
	}
	if err != nil {
		return distribution.Assignment{}, err
	}

	s.moveTasks(ctx, leadID, assignment.Member)

	return assignment, nil
}

// moveTasks hands the lead's pending tasks to the new owner. A task that has
// exhausted its redistribution attempts keeps its assignee; the escalation
// signal for the lead itself was already decided by the engine.
func (s *Service) moveTasks(ctx context.Context, leadID, newOwner uuid.UUID) {
	pending, err := s.ledger.PendingForLead(ctx, leadID)
	if err != nil {
		s.log.Error("failed to list pending tasks for reassignment", "leadId", leadID, "error", err)
		return
	}
	for _, task := range pending {
		if task.AssignedTo == newOwner {
			continue
		}
		if _, exhausted, err := s.ledger.Reassign(ctx, task.ID, newOwner); err != nil {
			s.log.Error("failed to reassign task", "taskId", task.ID, "error", err)
		} else if exhausted {
			s.log.Warn("task kept its assignee: redistribution attempts exhausted", "taskId", task.ID)
		}
	}
}

// SetStage advances the lead to a new pipeline stage.
func (s *Service) SetStage(ctx context.Context, leadID uuid.UUID, stage string) error {
	if !domain.IsKnownStage(stage) {
		return apperr.Validation("unknown pipeline stage")
	}
	if _, err := s.Lead(ctx, leadID); err != nil {
		return err
	}
	return s.store.SetStage(ctx, leadID, stage, s.now())
}

// SetStatus updates the lead's status. Moving to a terminal status releases
// the owner's capacity and closes the pipeline at the outcome stage.
func (s *Service) SetStatus(ctx context.Context, leadID uuid.UUID, status string) error {
	if !domain.IsKnownStatus(status) {
		return apperr.Validation("unknown lead status")
	}
	lead, err := s.Lead(ctx, leadID)
	if err != nil {
		return err
	}
	if domain.IsTerminalStatus(lead.Status) {
		return apperr.Conflict("lead is already closed")
	}
	if err := s.store.UpdateStatus(ctx, leadID, status); err != nil {
		return err
	}

	if domain.IsTerminalStatus(status) {
		if err := s.router.ReleaseIntake(ctx, lead.OwnerID); err != nil {
			s.log.Error("failed to release owner capacity", "leadId", leadID, "ownerId", lead.OwnerID, "error", err)
		}
		if lead.Stage != domain.StageOutcome {
			if err := s.store.SetStage(ctx, leadID, domain.StageOutcome, s.now()); err != nil {
				s.log.Error("failed to close pipeline stage", "leadId", leadID, "error", err)
			}
		}
	}
	return nil
}
