package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadrouter_backend/internal/distribution"
	"leadrouter_backend/internal/events"
	leadsrepo "leadrouter_backend/internal/leads/repository"
	"leadrouter_backend/internal/tasks/ledger"
	taskrepo "leadrouter_backend/internal/tasks/repository"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadSource supplies the active lead population and the priority flag
// mutation the bump action needs. Satisfied by the leads repository.
type LeadSource interface {
	ListActive(ctx context.Context) ([]leadsrepo.Lead, error)
	SetPriorityElevated(ctx context.Context, leadID uuid.UUID, elevated bool) error
}

// AttemptSource supplies per-lead contact summaries in one batch.
type AttemptSource interface {
	AttemptSummaries(ctx context.Context, leadIDs []uuid.UUID) (map[uuid.UUID]leadsrepo.AttemptSummary, error)
}

// Router performs the redistribute action.
type Router interface {
	Redistribute(ctx context.Context, lead distribution.LeadRef, reason string) (distribution.Assignment, error)
}

// TaskLedger performs the create-follow-up-task action.
type TaskLedger interface {
	CreateTask(ctx context.Context, p ledger.CreateTaskParams) (taskrepo.Task, error)
}

// ExecutionStore retains the append-only execution history.
type ExecutionStore interface {
	Insert(ctx context.Context, e Execution) (Execution, error)
	LastExecution(ctx context.Context, ruleID string) (time.Time, bool, error)
}

// Config is the subset of application configuration the engine needs.
type Config interface {
	GetFollowUpTaskTTL() time.Duration
}

// Engine evaluates the loaded rule set against the active lead population.
// One bad lead never aborts a batch: every per-candidate failure is recorded
// on the execution and processing continues.
type Engine struct {
	rules    []Rule
	leads    LeadSource
	attempts AttemptSource
	router   Router
	ledger   TaskLedger
	store    ExecutionStore
	bus      events.Bus
	log      *logger.Logger
	cfg      Config
}

func NewEngine(rules []Rule, leads LeadSource, attempts AttemptSource, router Router, taskLedger TaskLedger, store ExecutionStore, bus events.Bus, log *logger.Logger, cfg Config) *Engine {
	return &Engine{
		rules:    rules,
		leads:    leads,
		attempts: attempts,
		router:   router,
		ledger:   taskLedger,
		store:    store,
		bus:      bus,
		log:      log,
		cfg:      cfg,
	}
}

// Rules returns the loaded rule set.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// EvaluateDue runs every enabled rule whose frequency gate allows a run at
// asOf. Rules run on each tick they are due; there is no exact time-of-day
// match, so a delayed tick never skips a rule for the whole day.
func (e *Engine) EvaluateDue(ctx context.Context, asOf time.Time) ([]Execution, error) {
	leads, err := e.leads.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch active leads: %w", err)
	}

	ids := make([]uuid.UUID, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	summaries, err := e.attempts.AttemptSummaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch attempt summaries: %w", err)
	}

	executions := make([]Execution, 0)
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		due, err := e.isDue(ctx, rule, asOf)
		if err != nil {
			e.log.Error("failed to check rule schedule", "ruleId", rule.ID, "error", err)
			continue
		}
		if !due {
			continue
		}
		executions = append(executions, e.runRule(ctx, rule, leads, summaries, asOf))
	}
	return executions, nil
}

func (e *Engine) isDue(ctx context.Context, rule Rule, asOf time.Time) (bool, error) {
	if rule.Frequency == FrequencyEveryTick {
		return true, nil
	}
	last, ok, err := e.store.LastExecution(ctx, rule.ID)
	if err != nil || !ok {
		return err == nil, err
	}
	switch rule.Frequency {
	case FrequencyHourly:
		return asOf.Sub(last) >= time.Hour, nil
	default: // daily
		return !sameCalendarDay(last, asOf), nil
	}
}

func (e *Engine) runRule(ctx context.Context, rule Rule, leads []leadsrepo.Lead, summaries map[uuid.UUID]leadsrepo.AttemptSummary, asOf time.Time) Execution {
	execution := Execution{RuleID: rule.ID, ExecutedAt: asOf, Errors: []string{}}

	for _, lead := range leads {
		if ctx.Err() != nil {
			break
		}
		if !isCandidate(rule, lead, summaries[lead.ID], asOf) {
			continue
		}
		execution.Candidates++

		if err := e.applyActions(ctx, rule, lead, &execution, asOf); err != nil {
			execution.Failures++
			execution.Errors = append(execution.Errors, fmt.Sprintf("%s: %v", lead.ID, err))
			continue
		}
		execution.Successes++
	}

	if stored, err := e.store.Insert(ctx, execution); err != nil {
		e.log.Error("failed to record rule execution", "ruleId", rule.ID, "error", err)
	} else {
		execution = stored
	}

	if e.bus != nil {
		e.bus.Publish(ctx, events.RuleExecutionCompleted{
			BaseEvent:  events.NewBaseEvent(),
			RuleID:     rule.ID,
			Candidates: execution.Candidates,
			Successes:  execution.Successes,
			Failures:   execution.Failures,
		})
	}
	return execution
}

// applyActions runs the rule's actions for one candidate in fixed order:
// redistribute, then follow-up task, then priority bump, then notify.
func (e *Engine) applyActions(ctx context.Context, rule Rule, lead leadsrepo.Lead, execution *Execution, asOf time.Time) error {
	owner := lead.OwnerID

	if rule.Actions.Redistribute {
		assignment, err := e.router.Redistribute(ctx, distribution.LeadRef{
			ID:               lead.ID,
			OwnerID:          lead.OwnerID,
			ProductTags:      lead.ProductTags,
			PriorityElevated: lead.PriorityElevated,
		}, "rule:"+rule.ID)
		if err != nil {
			return fmt.Errorf("redistribute: %w", err)
		}
		owner = assignment.Member
		execution.Redistributed++
	}

	if rule.Actions.CreateTask {
		_, err := e.ledger.CreateTask(ctx, ledger.CreateTaskParams{
			LeadID:     lead.ID,
			Title:      "Follow up with " + lead.ConsumerName,
			Kind:       taskrepo.KindFollowUp,
			AssignedTo: owner,
			DueAt:      asOf.Add(e.cfg.GetFollowUpTaskTTL()),
		})
		switch {
		case errors.Is(err, ledger.ErrDuplicatePending):
			// The lead already has an open follow-up; nothing to add.
		case err != nil:
			return fmt.Errorf("create follow-up task: %w", err)
		default:
			execution.TasksCreated++
		}
	}

	if rule.Actions.BumpPriority && !lead.PriorityElevated {
		if err := e.leads.SetPriorityElevated(ctx, lead.ID, true); err != nil {
			return fmt.Errorf("bump priority: %w", err)
		}
		execution.PriorityBumps++
	}

	if rule.Actions.Notify {
		execution.Notifications++
		if e.bus != nil {
			e.bus.Publish(ctx, events.RuleNotificationRaised{
				BaseEvent: events.NewBaseEvent(),
				RuleID:    rule.ID,
				LeadID:    lead.ID,
				OwnerID:   owner,
				Message:   fmt.Sprintf("Lead %s needs attention: %d days without contact", lead.ConsumerName, rule.Trigger.DaysWithoutContact),
			})
		}
	}
	return nil
}

// isCandidate applies the rule's trigger conditions to one lead.
func isCandidate(rule Rule, lead leadsrepo.Lead, summary leadsrepo.AttemptSummary, asOf time.Time) bool {
	if len(rule.Trigger.Stages) > 0 && !contains(rule.Trigger.Stages, lead.Stage) {
		return false
	}
	if contains(rule.Trigger.ExcludedStatuses, lead.Status) {
		return false
	}

	lastContact := lead.CreatedAt
	if summary.Count > 0 {
		lastContact = summary.LastAttemptAt
	}
	if calendarDaysBetween(lastContact, asOf) < rule.Trigger.DaysWithoutContact {
		return false
	}

	if rule.Trigger.MinAttempts != nil && summary.Count < *rule.Trigger.MinAttempts {
		return false
	}
	if rule.Trigger.MaxAttempts != nil && summary.Count > *rule.Trigger.MaxAttempts {
		return false
	}
	return true
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

// calendarDaysBetween returns the calendar-day difference between two
// instants, evaluated in the reference instant's location.
func calendarDaysBetween(from, to time.Time) int {
	to = to.In(from.Location())
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, from.Location())
	end := time.Date(ty, tm, td, 0, 0, 0, 0, from.Location())
	return int(end.Sub(start) / (24 * time.Hour))
}

func sameCalendarDay(a, b time.Time) bool {
	return calendarDaysBetween(a, b) == 0
}
