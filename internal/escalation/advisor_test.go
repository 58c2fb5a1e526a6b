package escalation

import (
	"context"
	"testing"
	"time"

	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeAlertStore struct {
	alerts []*Alert
}

func (s *fakeAlertStore) Insert(ctx context.Context, p InsertAlertParams) (Alert, error) {
	a := Alert{
		ID:          uuid.New(),
		Type:        p.Type,
		Severity:    p.Severity,
		Message:     p.Message,
		AutoResolve: p.AutoResolve,
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.CreatedAt,
	}
	s.alerts = append(s.alerts, &a)
	return a, nil
}

func (s *fakeAlertStore) LatestUnresolved(ctx context.Context, alertType string) (Alert, error) {
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].Type == alertType && !s.alerts[i].Resolved {
			return *s.alerts[i], nil
		}
	}
	return Alert{}, ErrNotFound
}

func (s *fakeAlertStore) Touch(ctx context.Context, id uuid.UUID, severity string, metadata map[string]any, at time.Time) (Alert, error) {
	for _, a := range s.alerts {
		if a.ID == id && !a.Resolved {
			a.Severity = severity
			a.Metadata = metadata
			a.UpdatedAt = at
			return *a, nil
		}
	}
	return Alert{}, ErrNotFound
}

func (s *fakeAlertStore) ResolveAuto(ctx context.Context, alertType string, at time.Time) error {
	for _, a := range s.alerts {
		if a.Type == alertType && !a.Resolved && a.AutoResolve {
			a.Resolved = true
			a.ResolvedAt = &at
		}
	}
	return nil
}

func (s *fakeAlertStore) unresolved(alertType string) []*Alert {
	var out []*Alert
	for _, a := range s.alerts {
		if a.Type == alertType && !a.Resolved {
			out = append(out, a)
		}
	}
	return out
}

type fakeTeamView struct {
	ratio    float64
	active   int
	capacity int
}

func (f *fakeTeamView) Utilization(ctx context.Context) (float64, int, int, error) {
	return f.ratio, f.active, f.capacity, nil
}

type fakeTaskView struct {
	overdue int
}

func (f *fakeTaskView) OverdueCount(ctx context.Context, asOf time.Time) (int, error) {
	return f.overdue, nil
}

type advisorConfig struct{}

func (advisorConfig) GetDailyEscalationThreshold() int { return 3 }

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newAdvisor(store *fakeAlertStore, team *fakeTeamView, tasks *fakeTaskView, c *clock) *Advisor {
	return NewAdvisor(store, team, tasks, nil, logger.New("development"), advisorConfig{}, c.now)
}

func TestEvaluate_UtilizationThresholds(t *testing.T) {
	store := &fakeAlertStore{}
	team := &fakeTeamView{ratio: 0.70, active: 14, capacity: 20}
	c := &clock{t: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	advisor := newAdvisor(store, team, &fakeTaskView{}, c)

	// 70%: quiet.
	if err := advisor.Evaluate(context.Background(), c.t, 0); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if len(store.alerts) != 0 {
		t.Fatalf("expected no alerts at 70%%, got %d", len(store.alerts))
	}

	// 78%: medium overload alert.
	team.ratio = 0.78
	c.t = c.t.Add(2 * time.Hour)
	if err := advisor.Evaluate(context.Background(), c.t, 0); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	overload := store.unresolved(TypeTeamOverload)
	if len(overload) != 1 || overload[0].Severity != SeverityMedium {
		t.Fatalf("expected one medium overload alert, got %+v", overload)
	}

	// 92%: critical capacity alert; the overload alert is not duplicated.
	team.ratio = 0.92
	c.t = c.t.Add(2 * time.Hour)
	if err := advisor.Evaluate(context.Background(), c.t, 0); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	critical := store.unresolved(TypeCapacityCritical)
	if len(critical) != 1 || critical[0].Severity != SeverityCritical {
		t.Fatalf("expected one critical capacity alert, got %+v", critical)
	}
	if len(store.unresolved(TypeTeamOverload)) != 1 {
		t.Fatal("the earlier overload alert must remain, never duplicated")
	}

	// Back under 75%: both auto-resolve.
	team.ratio = 0.60
	c.t = c.t.Add(2 * time.Hour)
	if err := advisor.Evaluate(context.Background(), c.t, 0); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if len(store.unresolved(TypeCapacityCritical)) != 0 || len(store.unresolved(TypeTeamOverload)) != 0 {
		t.Fatal("capacity alerts must auto-resolve once utilization drops")
	}
}

func TestEvaluate_OverdueTaskThresholds(t *testing.T) {
	store := &fakeAlertStore{}
	tasks := &fakeTaskView{overdue: 6}
	c := &clock{t: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	advisor := newAdvisor(store, &fakeTeamView{ratio: 0.5}, tasks, c)

	if err := advisor.Evaluate(context.Background(), c.t, 0); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	high := store.unresolved(TypePerformanceIssue)
	if len(high) != 1 || high[0].Severity != SeverityHigh || !high[0].AutoResolve {
		t.Fatalf("expected one auto-resolving high alert, got %+v", high)
	}

	// Count drops: the high alert auto-resolves.
	tasks.overdue = 2
	c.t = c.t.Add(2 * time.Hour)
	if err := advisor.Evaluate(context.Background(), c.t, 0); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if len(store.unresolved(TypePerformanceIssue)) != 0 {
		t.Fatal("high performance alert must auto-resolve when the count drops")
	}

	// Critical alerts never auto-resolve.
	tasks.overdue = 12
	c.t = c.t.Add(2 * time.Hour)
	if err := advisor.Evaluate(context.Background(), c.t, 0); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	tasks.overdue = 0
	c.t = c.t.Add(2 * time.Hour)
	if err := advisor.Evaluate(context.Background(), c.t, 0); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	remaining := store.unresolved(TypePerformanceIssue)
	if len(remaining) != 1 || remaining[0].Severity != SeverityCritical {
		t.Fatalf("critical performance alert requires human resolution, got %+v", remaining)
	}
}

func TestEvaluate_EscalationPatternThreshold(t *testing.T) {
	store := &fakeAlertStore{}
	c := &clock{t: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	advisor := newAdvisor(store, &fakeTeamView{ratio: 0.5}, &fakeTaskView{}, c)

	// At the threshold: quiet. Past it: high alert.
	if err := advisor.Evaluate(context.Background(), c.t, 3); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if len(store.alerts) != 0 {
		t.Fatal("threshold itself must not trigger the pattern alert")
	}

	if err := advisor.Evaluate(context.Background(), c.t, 4); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	pattern := store.unresolved(TypeTimeoutPattern)
	if len(pattern) != 1 || pattern[0].Severity != SeverityHigh || pattern[0].AutoResolve {
		t.Fatalf("expected one non-auto-resolving high pattern alert, got %+v", pattern)
	}
}

func TestRaise_DeduplicatesWithinWindow(t *testing.T) {
	store := &fakeAlertStore{}
	c := &clock{t: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	advisor := newAdvisor(store, &fakeTeamView{}, &fakeTaskView{}, c)

	leadA, leadB := uuid.New(), uuid.New()
	if err := advisor.NoteEscalation(context.Background(), leadA, uuid.New()); err != nil {
		t.Fatalf("NoteEscalation returned error: %v", err)
	}

	// Thirty minutes later the same condition triggers again: metadata is
	// updated on the existing alert, no duplicate row.
	c.t = c.t.Add(30 * time.Minute)
	if err := advisor.NoteEscalation(context.Background(), leadB, uuid.New()); err != nil {
		t.Fatalf("NoteEscalation returned error: %v", err)
	}

	unresolved := store.unresolved(TypeEscalation)
	if len(unresolved) != 1 {
		t.Fatalf("expected exactly one unresolved escalation alert, got %d", len(unresolved))
	}
	if unresolved[0].Metadata["leadId"] != leadB.String() {
		t.Fatalf("expected metadata updated to the latest trigger, got %v", unresolved[0].Metadata)
	}
	if unresolved[0].Metadata["triggerCount"] != 2 {
		t.Fatalf("expected trigger count 2, got %v", unresolved[0].Metadata["triggerCount"])
	}

	// Past the window a fresh alert is allowed.
	c.t = c.t.Add(2 * time.Hour)
	if err := advisor.NoteEscalation(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("NoteEscalation returned error: %v", err)
	}
	if len(store.unresolved(TypeEscalation)) != 2 {
		t.Fatal("a trigger outside the window must open a new alert")
	}
}

func TestRecommendations_RankedByUrgency(t *testing.T) {
	c := &clock{t: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	advisor := newAdvisor(&fakeAlertStore{}, &fakeTeamView{ratio: 0.95}, &fakeTaskView{overdue: 12}, c)

	recommendations, err := advisor.Recommendations(context.Background(), c.t)
	if err != nil {
		t.Fatalf("Recommendations returned error: %v", err)
	}
	if len(recommendations) != 3 {
		t.Fatalf("expected hire, redistribute, and train, got %+v", recommendations)
	}
	if recommendations[0].Action != "hire" || recommendations[0].Rank != 1 {
		t.Fatalf("expected hire ranked first, got %+v", recommendations[0])
	}
	for i, r := range recommendations {
		if r.Rank != i+1 {
			t.Fatalf("ranks must be sequential, got %+v", recommendations)
		}
	}
}
