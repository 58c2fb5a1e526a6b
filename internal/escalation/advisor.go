package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadrouter_backend/internal/events"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
)

// dedupWindow is the rolling window inside which a repeated trigger updates
// the existing unresolved alert instead of opening a duplicate.
const dedupWindow = time.Hour

// Utilization thresholds.
const (
	utilizationCritical = 0.90
	utilizationMedium   = 0.75
)

// Overdue-task thresholds.
const (
	overdueCritical = 10
	overdueHigh     = 5
)

// AlertStore is the persistence surface the advisor drives.
type AlertStore interface {
	Insert(ctx context.Context, p InsertAlertParams) (Alert, error)
	LatestUnresolved(ctx context.Context, alertType string) (Alert, error)
	Touch(ctx context.Context, id uuid.UUID, severity string, metadata map[string]any, at time.Time) (Alert, error)
	ResolveAuto(ctx context.Context, alertType string, at time.Time) error
}

// TeamView supplies team-wide load. Satisfied by the team directory.
type TeamView interface {
	Utilization(ctx context.Context) (ratio float64, active int, capacity int, err error)
}

// TaskView supplies the overdue-task count. Satisfied by the task ledger.
type TaskView interface {
	OverdueCount(ctx context.Context, asOf time.Time) (int, error)
}

// Config is the subset of application configuration the advisor needs.
type Config interface {
	GetDailyEscalationThreshold() int
}

// Recommendation is advisory text for the director, never actioned
// automatically. Lower rank means more urgent.
type Recommendation struct {
	Rank   int    `json:"rank"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// Advisor turns capacity, overdue-task, and escalation-frequency signals
// into deduplicated director alerts.
type Advisor struct {
	store AlertStore
	team  TeamView
	tasks TaskView
	bus   events.Bus
	log   *logger.Logger
	cfg   Config
	now   func() time.Time
}

func NewAdvisor(store AlertStore, team TeamView, tasks TaskView, bus events.Bus, log *logger.Logger, cfg Config, now func() time.Time) *Advisor {
	if now == nil {
		now = time.Now
	}
	return &Advisor{store: store, team: team, tasks: tasks, bus: bus, log: log, cfg: cfg, now: now}
}

// NoteEscalation records that a lead landed on the director.
func (a *Advisor) NoteEscalation(ctx context.Context, leadID, directorID uuid.UUID) error {
	_, err := a.raise(ctx, InsertAlertParams{
		Type:     TypeEscalation,
		Severity: SeverityHigh,
		Message:  "lead escalated to the director: no ordinary team member available",
		Metadata: map[string]any{"leadId": leadID.String(), "directorId": directorID.String()},
	})
	return err
}

// NoteCapacityExhausted records that a lead could not be placed at all.
func (a *Advisor) NoteCapacityExhausted(ctx context.Context, leadID uuid.UUID) error {
	_, err := a.raise(ctx, InsertAlertParams{
		Type:     TypeCapacityCritical,
		Severity: SeverityCritical,
		Message:  "lead could not be placed: team and director at capacity",
		Metadata: map[string]any{"leadId": leadID.String()},
	})
	return err
}

// Evaluate recomputes the threshold-driven alerts. Signals that dropped back
// under their thresholds auto-resolve, except where the alert is flagged for
// explicit human resolution.
func (a *Advisor) Evaluate(ctx context.Context, asOf time.Time, escalatedToday int) error {
	ratio, active, capacity, err := a.team.Utilization(ctx)
	if err != nil {
		return fmt.Errorf("team utilization: %w", err)
	}
	overdue, err := a.tasks.OverdueCount(ctx, asOf)
	if err != nil {
		return fmt.Errorf("overdue count: %w", err)
	}

	if err := a.evaluateUtilization(ctx, ratio, active, capacity, asOf); err != nil {
		return err
	}
	if err := a.evaluateOverdue(ctx, overdue, asOf); err != nil {
		return err
	}
	return a.evaluateEscalationPattern(ctx, escalatedToday)
}

func (a *Advisor) evaluateUtilization(ctx context.Context, ratio float64, active, capacity int, asOf time.Time) error {
	metadata := map[string]any{"ratio": ratio, "active": active, "capacity": capacity}

	switch {
	case ratio >= utilizationCritical:
		_, err := a.raise(ctx, InsertAlertParams{
			Type:        TypeCapacityCritical,
			Severity:    SeverityCritical,
			Message:     fmt.Sprintf("team utilization at %.0f%%: no room for new leads", ratio*100),
			AutoResolve: true,
			Metadata:    metadata,
		})
		return err
	case ratio >= utilizationMedium:
		_, err := a.raise(ctx, InsertAlertParams{
			Type:        TypeTeamOverload,
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("team utilization at %.0f%%", ratio*100),
			AutoResolve: true,
			Metadata:    metadata,
		})
		return err
	default:
		if err := a.store.ResolveAuto(ctx, TypeCapacityCritical, asOf); err != nil {
			return err
		}
		return a.store.ResolveAuto(ctx, TypeTeamOverload, asOf)
	}
}

func (a *Advisor) evaluateOverdue(ctx context.Context, overdue int, asOf time.Time) error {
	metadata := map[string]any{"overdueTasks": overdue}

	switch {
	case overdue >= overdueCritical:
		// Critical performance alerts require explicit human resolution.
		_, err := a.raise(ctx, InsertAlertParams{
			Type:     TypePerformanceIssue,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("%d tasks overdue", overdue),
			Metadata: metadata,
		})
		return err
	case overdue >= overdueHigh:
		_, err := a.raise(ctx, InsertAlertParams{
			Type:        TypePerformanceIssue,
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("%d tasks overdue", overdue),
			AutoResolve: true,
			Metadata:    metadata,
		})
		return err
	default:
		return a.store.ResolveAuto(ctx, TypePerformanceIssue, asOf)
	}
}

func (a *Advisor) evaluateEscalationPattern(ctx context.Context, escalatedToday int) error {
	if escalatedToday <= a.cfg.GetDailyEscalationThreshold() {
		return nil
	}
	_, err := a.raise(ctx, InsertAlertParams{
		Type:     TypeTimeoutPattern,
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("%d leads escalated to the director today", escalatedToday),
		Metadata: map[string]any{"escalatedToday": escalatedToday},
	})
	return err
}

// raise opens an alert, deduplicating against the unresolved alert of the
// same type inside the rolling window: repeated triggers update severity and
// metadata on the existing alert instead of duplicating it.
func (a *Advisor) raise(ctx context.Context, p InsertAlertParams) (Alert, error) {
	asOf := a.now()

	existing, err := a.store.LatestUnresolved(ctx, p.Type)
	if err == nil && asOf.Sub(existing.CreatedAt) < dedupWindow {
		metadata := p.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["triggerCount"] = triggerCount(existing.Metadata) + 1
		return a.store.Touch(ctx, existing.ID, p.Severity, metadata, asOf)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Alert{}, err
	}

	p.CreatedAt = asOf
	alert, err := a.store.Insert(ctx, p)
	if err != nil {
		return Alert{}, err
	}

	a.log.Warn("director alert raised", "type", alert.Type, "severity", alert.Severity, "message", alert.Message)
	if a.bus != nil {
		a.bus.Publish(ctx, events.DirectorAlertRaised{
			BaseEvent: events.NewBaseEvent(),
			AlertID:   alert.ID,
			Type:      alert.Type,
			Severity:  alert.Severity,
			Message:   alert.Message,
		})
	}
	return alert, nil
}

func triggerCount(metadata map[string]any) int {
	switch v := metadata["triggerCount"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 1
	}
}

// Recommendations derives ranked advisory actions from the current signals.
func (a *Advisor) Recommendations(ctx context.Context, asOf time.Time) ([]Recommendation, error) {
	ratio, _, _, err := a.team.Utilization(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := a.tasks.OverdueCount(ctx, asOf)
	if err != nil {
		return nil, err
	}

	recommendations := make([]Recommendation, 0, 3)
	if ratio >= utilizationCritical {
		recommendations = append(recommendations, Recommendation{
			Action: "hire",
			Reason: fmt.Sprintf("utilization at %.0f%%: the team cannot absorb new leads", ratio*100),
		})
	}
	if overdue >= overdueHigh || ratio >= utilizationMedium {
		recommendations = append(recommendations, Recommendation{
			Action: "redistribute",
			Reason: fmt.Sprintf("%d overdue tasks at %.0f%% utilization: rebalance load across the team", overdue, ratio*100),
		})
	}
	if overdue >= overdueCritical {
		recommendations = append(recommendations, Recommendation{
			Action: "train",
			Reason: fmt.Sprintf("%d overdue tasks: deadlines are being missed consistently", overdue),
		})
	}

	for i := range recommendations {
		recommendations[i].Rank = i + 1
	}
	return recommendations, nil
}
