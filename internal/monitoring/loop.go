// Package monitoring runs the periodic scan over active leads: expired
// initial-contact tasks are closed and their leads redistributed or
// escalated, reschedule rules are evaluated, and each tick's outcome is
// retained in a bounded history.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadrouter_backend/internal/distribution"
	leadsrepo "leadrouter_backend/internal/leads/repository"
	"leadrouter_backend/internal/rules"
	"leadrouter_backend/internal/tasks/ledger"
	taskrepo "leadrouter_backend/internal/tasks/repository"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadSource supplies the lead population. Satisfied by the leads repository.
type LeadSource interface {
	ListActive(ctx context.Context) ([]leadsrepo.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error)
}

// TaskSource is the task ledger surface the loop drives.
type TaskSource interface {
	OverdueInitialContact(ctx context.Context, asOf time.Time) ([]taskrepo.Task, error)
	PendingForLead(ctx context.Context, leadID uuid.UUID) ([]taskrepo.Task, error)
	ExpireTask(ctx context.Context, taskID uuid.UUID) (taskrepo.Task, error)
	CreateTask(ctx context.Context, p ledger.CreateTaskParams) (taskrepo.Task, error)
	MaxAttempts() int
}

// Router performs redistribution under the per-lead token.
type Router interface {
	LockLead(leadID uuid.UUID) func()
	RedistributeLocked(ctx context.Context, lead distribution.LeadRef, reason string) (distribution.Assignment, error)
	EscalateLocked(ctx context.Context, lead distribution.LeadRef, reason string) (distribution.Assignment, error)
}

// RuleEngine evaluates the reschedule rules due at each tick.
type RuleEngine interface {
	EvaluateDue(ctx context.Context, asOf time.Time) ([]rules.Execution, error)
}

// Advisor receives the loop's escalation signals and re-evaluates the
// director alert set each tick.
type Advisor interface {
	NoteEscalation(ctx context.Context, leadID, directorID uuid.UUID) error
	NoteCapacityExhausted(ctx context.Context, leadID uuid.UUID) error
	Evaluate(ctx context.Context, asOf time.Time, escalatedToday int) error
}

// Config is the subset of application configuration the loop needs.
type Config interface {
	GetMonitorInterval() time.Duration
	GetInitialContactTTL() time.Duration
}

type Loop struct {
	leads   LeadSource
	tasks   TaskSource
	router  Router
	rules   RuleEngine
	advisor Advisor
	log     *logger.Logger
	cfg     Config
	now     func() time.Time

	// tickGate serializes ticks. The periodic loop, the operator-triggered
	// tick, and the scheduler's targeted pass all take it, so two scans can
	// never interleave on the same lead population.
	tickGate chan struct{}
	history  *history
}

// New creates a monitoring loop. now may be nil for wall-clock time; tests
// inject a virtual clock instead of sleeping.
func New(leads LeadSource, tasks TaskSource, router Router, ruleEngine RuleEngine, advisor Advisor, log *logger.Logger, cfg Config, now func() time.Time) *Loop {
	if now == nil {
		now = time.Now
	}
	return &Loop{
		leads:    leads,
		tasks:    tasks,
		router:   router,
		rules:    ruleEngine,
		advisor:  advisor,
		log:      log,
		cfg:      cfg,
		now:      now,
		tickGate: make(chan struct{}, 1),
		history:  &history{},
	}
}

// Run ticks until the context is cancelled. The first tick fires
// immediately; a failing tick is recorded and the loop continues.
func (l *Loop) Run(ctx context.Context) {
	interval := l.cfg.GetMonitorInterval()
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	l.log.Info("monitoring loop started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.log.Info("monitoring loop stopped")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Results returns the retained tick history, newest first.
func (l *Loop) Results() []Result {
	return l.history.snapshot()
}

// Tick runs one full monitoring pass. Ticks are serialized; a tick that
// panics or fails is recorded as a failed result and never kills the caller.
func (l *Loop) Tick(ctx context.Context) Result {
	l.tickGate <- struct{}{}
	defer func() { <-l.tickGate }()

	started := l.now()
	result := Result{StartedAt: started, Errors: []string{}}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("tick panic: %v", r))
				l.log.Error("monitoring tick panicked", "panic", fmt.Sprint(r))
			}
		}()
		l.runTick(ctx, started, &result)
	}()

	result.FinishedAt = l.now()
	l.history.append(result)
	l.log.MonitoringTick(result.LeadsScanned, result.Redistributed, result.Escalated, result.Failed,
		float64(result.FinishedAt.Sub(result.StartedAt).Microseconds())/1000)

	if l.advisor != nil {
		startOfDay := time.Date(started.Year(), started.Month(), started.Day(), 0, 0, 0, 0, started.Location())
		if err := l.advisor.Evaluate(ctx, started, l.history.escalatedSince(startOfDay)); err != nil {
			l.log.Error("escalation advisor evaluation failed", "error", err)
		}
	}
	return result
}

func (l *Loop) runTick(ctx context.Context, asOf time.Time, result *Result) {
	leads, err := l.leads.ListActive(ctx)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("fetch active leads: %v", err))
		return
	}
	result.LeadsScanned = len(leads)

	overdue, err := l.tasks.OverdueInitialContact(ctx, asOf)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("fetch overdue tasks: %v", err))
		return
	}
	for _, task := range overdue {
		if ctx.Err() != nil {
			return
		}
		l.processOverdueTask(ctx, task, asOf, result)
	}

	if l.rules != nil {
		executions, err := l.rules.EvaluateDue(ctx, asOf)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("rule evaluation: %v", err))
		} else {
			result.RuleExecutions = len(executions)
		}
	}
}

// processOverdueTask handles one expired initial-contact deadline: the task
// is closed as expired, then the lead moves on. An ordinary new owner gets a
// fresh initial-contact task carrying the incremented attempt count; landing
// on the director raises an escalation alert instead; finding nobody at all
// raises a capacity alert. Expiry and redistribution happen under the
// lead's token so a manual reassignment cannot interleave.
func (l *Loop) processOverdueTask(ctx context.Context, task taskrepo.Task, asOf time.Time, result *Result) {
	unlock := l.router.LockLead(task.LeadID)
	defer unlock()

	lead, err := l.leads.GetByID(ctx, task.LeadID)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: load lead: %v", task.LeadID, err))
		return
	}

	expired, err := l.tasks.ExpireTask(ctx, task.ID)
	if errors.Is(err, ledger.ErrInvalidTransition) {
		// Completed between the fetch and the lock; nothing overdue anymore.
		return
	}
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: expire task: %v", task.LeadID, err))
		return
	}
	result.TasksClosed++

	ref := distribution.LeadRef{
		ID:               lead.ID,
		OwnerID:          lead.OwnerID,
		ProductTags:      lead.ProductTags,
		PriorityElevated: lead.PriorityElevated,
	}

	attempts := expired.RedistributionAttempts
	if attempts >= l.tasks.MaxAttempts() {
		l.escalate(ctx, ref, "redistribution attempts exhausted", result)
		return
	}

	assignment, err := l.router.RedistributeLocked(ctx, ref, "initial contact deadline expired")
	if errors.Is(err, distribution.ErrCapacityExhausted) {
		l.capacityAlert(ctx, lead.ID, result)
		return
	}
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: redistribute: %v", lead.ID, err))
		return
	}

	if assignment.Escalated {
		result.Escalated++
		l.noteEscalation(ctx, lead.ID, assignment.Member, result)
		return
	}

	result.Redistributed++
	if _, err := l.tasks.CreateTask(ctx, ledger.CreateTaskParams{
		LeadID:     lead.ID,
		Title:      "Make initial contact with " + lead.ConsumerName,
		Kind:       taskrepo.KindInitialContact,
		AssignedTo: assignment.Member,
		DueAt:      asOf.Add(l.cfg.GetInitialContactTTL()),
		Attempts:   attempts + 1,
	}); err != nil {
		// The redistribution is committed; the missing follow-up deadline is
		// recorded as a failure rather than rolled back.
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: create replacement task: %v", lead.ID, err))
		return
	}
	result.TasksCreated++
}

func (l *Loop) escalate(ctx context.Context, ref distribution.LeadRef, reason string, result *Result) {
	assignment, err := l.router.EscalateLocked(ctx, ref, reason)
	if errors.Is(err, distribution.ErrCapacityExhausted) {
		l.capacityAlert(ctx, ref.ID, result)
		return
	}
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: escalate: %v", ref.ID, err))
		return
	}
	result.Escalated++
	l.noteEscalation(ctx, ref.ID, assignment.Member, result)
}

func (l *Loop) noteEscalation(ctx context.Context, leadID, directorID uuid.UUID, result *Result) {
	if l.advisor == nil {
		return
	}
	if err := l.advisor.NoteEscalation(ctx, leadID, directorID); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: escalation alert: %v", leadID, err))
	}
}

func (l *Loop) capacityAlert(ctx context.Context, leadID uuid.UUID, result *Result) {
	result.Failed++
	result.Errors = append(result.Errors, fmt.Sprintf("%s: team and director at capacity", leadID))
	if l.advisor == nil {
		return
	}
	if err := l.advisor.NoteCapacityExhausted(ctx, leadID); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: capacity alert: %v", leadID, err))
	}
}

// TickLead runs a targeted pass over one lead's overdue initial-contact
// task, sharing the serialization gate with full ticks. The deadline
// scheduler invokes it when a one-shot deadline check fires.
func (l *Loop) TickLead(ctx context.Context, leadID uuid.UUID) Result {
	l.tickGate <- struct{}{}
	defer func() { <-l.tickGate }()

	asOf := l.now()
	result := Result{StartedAt: asOf, LeadsScanned: 1, Errors: []string{}}

	pending, err := l.tasks.PendingForLead(ctx, leadID)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: fetch pending tasks: %v", leadID, err))
	} else {
		for _, task := range pending {
			if task.Kind == taskrepo.KindInitialContact && task.DueAt.Before(asOf) {
				l.processOverdueTask(ctx, task, asOf, &result)
			}
		}
	}

	result.FinishedAt = l.now()
	l.history.append(result)
	return result
}
