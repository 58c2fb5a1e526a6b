// Package ledger implements the task state machine: pending tasks are closed
// as completed or expired, or handed to a new assignee while still pending.
// The ledger is pure bookkeeping; it never decides routing. Redistribution
// and escalation choices belong to the distribution engine and the
// monitoring loop.
package ledger

import (
	"context"
	"errors"
	"time"

	"leadrouter_backend/internal/events"
	"leadrouter_backend/internal/leads/domain"
	"leadrouter_backend/internal/tasks/repository"

	"github.com/google/uuid"
)

// Sentinels surfaced to callers; transports map them onto typed API errors.
var (
	ErrNotFound         = repository.ErrNotFound
	ErrDuplicatePending = repository.ErrDuplicatePending

	// ErrInvalidTransition means the task is not pending, so it cannot be
	// completed, expired, or reassigned. Closing a closed task is rejected,
	// never silently ignored.
	ErrInvalidTransition = errors.New("task is not pending")
)

// ExpiredNote is stamped on every task closed by timeout.
const ExpiredNote = "no contact was made — automatic timeout"

// DefaultMaxRedistributionAttempts bounds how often a task may change hands
// before the lead escalates to the director.
const DefaultMaxRedistributionAttempts = 3

// contactKinds are task kinds whose completion implies the customer was
// contacted; closing one appends a contact attempt.
var contactKinds = map[string]bool{
	repository.KindInitialContact: true,
	repository.KindFollowUp:       true,
	repository.KindReschedule:     true,
}

// Store is the persistence surface the ledger drives.
type Store interface {
	Create(ctx context.Context, p repository.CreateTaskParams) (repository.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Task, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Task, error)
	PendingByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Task, error)
	ListPendingDueBefore(ctx context.Context, kind string, before time.Time) ([]repository.Task, error)
	Complete(ctx context.Context, id uuid.UUID, outcome string, note *string, at time.Time) (repository.Task, error)
	MarkExpired(ctx context.Context, id uuid.UUID, note string, at time.Time) (repository.Task, error)
	UpdateAssignee(ctx context.Context, id uuid.UUID, newAssignee uuid.UUID) (repository.Task, error)
	CountOverdue(ctx context.Context, now time.Time) (int, error)
}

// AttemptRecorder appends contact attempts when completed tasks imply one.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, leadID, ownerID uuid.UUID, channel, outcome string, notes *string, at time.Time) error
}

type CreateTaskParams struct {
	LeadID      uuid.UUID
	Title       string
	Description *string
	Kind        string
	AssignedTo  uuid.UUID
	DueAt       time.Time
	// Attempts carries forward the redistribution count when a fresh task
	// replaces an expired one for the same lead.
	Attempts int
}

type CompleteTaskParams struct {
	Outcome string
	Channel string
	Notes   *string
}

type Ledger struct {
	store       Store
	attempts    AttemptRecorder
	bus         events.Bus
	maxAttempts int
	now         func() time.Time
}

// New creates a task ledger. attempts may be nil when no contact log is
// wired (tests); bus may be nil likewise. maxAttempts <= 0 selects the
// default.
func New(store Store, attempts AttemptRecorder, bus events.Bus, maxAttempts int, now func() time.Time) *Ledger {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxRedistributionAttempts
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, attempts: attempts, bus: bus, maxAttempts: maxAttempts, now: now}
}

// MaxAttempts returns the configured redistribution ceiling.
func (l *Ledger) MaxAttempts() int {
	return l.maxAttempts
}

// CreateTask opens a pending task. At most one pending task per (lead, kind)
// may exist; a duplicate returns ErrDuplicatePending and writes nothing.
func (l *Ledger) CreateTask(ctx context.Context, p CreateTaskParams) (repository.Task, error) {
	task, err := l.store.Create(ctx, repository.CreateTaskParams{
		LeadID:                    p.LeadID,
		Title:                     p.Title,
		Description:               p.Description,
		Kind:                      p.Kind,
		AssignedTo:                p.AssignedTo,
		DueAt:                     p.DueAt,
		RedistributionAttempts:    p.Attempts,
		MaxRedistributionAttempts: l.maxAttempts,
	})
	if err != nil {
		return repository.Task{}, err
	}

	if l.bus != nil {
		l.bus.Publish(ctx, events.TaskCreated{
			BaseEvent:  events.NewBaseEvent(),
			TaskID:     task.ID,
			LeadID:     task.LeadID,
			Kind:       task.Kind,
			AssignedTo: task.AssignedTo,
			DueAt:      task.DueAt,
		})
	}
	return task, nil
}

// Task returns a single task by id.
func (l *Ledger) Task(ctx context.Context, id uuid.UUID) (repository.Task, error) {
	return l.store.GetByID(ctx, id)
}

// TasksForLead returns the lead's full task history, newest first.
func (l *Ledger) TasksForLead(ctx context.Context, leadID uuid.UUID) ([]repository.Task, error) {
	return l.store.ListByLead(ctx, leadID)
}

// PendingForLead returns the lead's open tasks, nearest deadline first.
func (l *Ledger) PendingForLead(ctx context.Context, leadID uuid.UUID) ([]repository.Task, error) {
	return l.store.PendingByLead(ctx, leadID)
}

// OverdueInitialContact returns initial-contact tasks whose deadline passed
// while still pending, measured against the given instant.
func (l *Ledger) OverdueInitialContact(ctx context.Context, asOf time.Time) ([]repository.Task, error) {
	return l.store.ListPendingDueBefore(ctx, repository.KindInitialContact, asOf)
}

// OverdueCount reports how many tasks are expired or pending past deadline.
func (l *Ledger) OverdueCount(ctx context.Context, asOf time.Time) (int, error) {
	return l.store.CountOverdue(ctx, asOf)
}

// CompleteTask closes a pending task normally. When the task kind implies
// customer contact, the outcome is appended to the lead's contact log; a
// failure there is returned so the caller never loses an attempt record
// silently.
func (l *Ledger) CompleteTask(ctx context.Context, taskID uuid.UUID, p CompleteTaskParams) (repository.Task, error) {
	at := l.now()
	task, err := l.store.Complete(ctx, taskID, p.Outcome, p.Notes, at)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Task{}, l.resolveMissing(ctx, taskID)
	}
	if err != nil {
		return repository.Task{}, err
	}

	if contactKinds[task.Kind] && l.attempts != nil {
		channel := p.Channel
		if channel == "" {
			channel = domain.ChannelCall
		}
		if err := l.attempts.RecordAttempt(ctx, task.LeadID, task.AssignedTo, channel, p.Outcome, p.Notes, at); err != nil {
			return repository.Task{}, err
		}
	}

	if l.bus != nil {
		l.bus.Publish(ctx, events.TaskCompleted{
			BaseEvent: events.NewBaseEvent(),
			TaskID:    task.ID,
			LeadID:    task.LeadID,
			Kind:      task.Kind,
			Outcome:   p.Outcome,
		})
	}
	return task, nil
}

// ExpireTask closes a pending task as timed out, stamping the standard
// timeout note. Expiry never triggers redistribution by itself.
func (l *Ledger) ExpireTask(ctx context.Context, taskID uuid.UUID) (repository.Task, error) {
	task, err := l.store.MarkExpired(ctx, taskID, ExpiredNote, l.now())
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Task{}, l.resolveMissing(ctx, taskID)
	}
	if err != nil {
		return repository.Task{}, err
	}

	if l.bus != nil {
		l.bus.Publish(ctx, events.TaskExpired{
			BaseEvent:  events.NewBaseEvent(),
			TaskID:     task.ID,
			LeadID:     task.LeadID,
			Kind:       task.Kind,
			AssignedTo: task.AssignedTo,
		})
	}
	return task, nil
}

// Reassign hands a pending task to a new assignee, counting one more
// redistribution attempt. When the task has already used up its attempts the
// ledger leaves it untouched and signals escalation instead; the caller
// decides what escalation means.
func (l *Ledger) Reassign(ctx context.Context, taskID uuid.UUID, newAssignee uuid.UUID) (task repository.Task, escalate bool, err error) {
	task, err = l.store.GetByID(ctx, taskID)
	if err != nil {
		return repository.Task{}, false, err
	}
	if task.Status != repository.StatusPending {
		return repository.Task{}, false, ErrInvalidTransition
	}
	if task.RedistributionAttempts >= task.MaxRedistributionAttempts {
		return task, true, nil
	}

	task, err = l.store.UpdateAssignee(ctx, taskID, newAssignee)
	if errors.Is(err, repository.ErrNotFound) {
		// Lost the race with a concurrent close.
		return repository.Task{}, false, ErrInvalidTransition
	}
	if err != nil {
		return repository.Task{}, false, err
	}
	return task, false, nil
}

// resolveMissing distinguishes "no such task" from "task exists but is not
// pending" after a guarded update matched nothing.
func (l *Ledger) resolveMissing(ctx context.Context, taskID uuid.UUID) error {
	if _, err := l.store.GetByID(ctx, taskID); err != nil {
		return err
	}
	return ErrInvalidTransition
}
