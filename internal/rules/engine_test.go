package rules

import (
	"context"
	"strings"
	"testing"
	"time"

	"leadrouter_backend/internal/distribution"
	"leadrouter_backend/internal/leads/domain"
	leadsrepo "leadrouter_backend/internal/leads/repository"
	"leadrouter_backend/internal/tasks/ledger"
	taskrepo "leadrouter_backend/internal/tasks/repository"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadSource struct {
	leads    []leadsrepo.Lead
	elevated map[uuid.UUID]bool
}

func (s *fakeLeadSource) ListActive(ctx context.Context) ([]leadsrepo.Lead, error) {
	return s.leads, nil
}

func (s *fakeLeadSource) SetPriorityElevated(ctx context.Context, leadID uuid.UUID, elevated bool) error {
	if s.elevated == nil {
		s.elevated = make(map[uuid.UUID]bool)
	}
	s.elevated[leadID] = elevated
	return nil
}

type fakeAttemptSource struct {
	summaries map[uuid.UUID]leadsrepo.AttemptSummary
}

func (s *fakeAttemptSource) AttemptSummaries(ctx context.Context, leadIDs []uuid.UUID) (map[uuid.UUID]leadsrepo.AttemptSummary, error) {
	return s.summaries, nil
}

type fakeRouter struct {
	failFor map[uuid.UUID]error
	moved   []uuid.UUID
	target  uuid.UUID
}

func (r *fakeRouter) Redistribute(ctx context.Context, lead distribution.LeadRef, reason string) (distribution.Assignment, error) {
	if err := r.failFor[lead.ID]; err != nil {
		return distribution.Assignment{}, err
	}
	r.moved = append(r.moved, lead.ID)
	return distribution.Assignment{Member: r.target, Name: "target"}, nil
}

type fakeTaskLedger struct {
	created   []ledger.CreateTaskParams
	duplicate map[uuid.UUID]bool
}

func (l *fakeTaskLedger) CreateTask(ctx context.Context, p ledger.CreateTaskParams) (taskrepo.Task, error) {
	if l.duplicate[p.LeadID] {
		return taskrepo.Task{}, ledger.ErrDuplicatePending
	}
	l.created = append(l.created, p)
	return taskrepo.Task{ID: uuid.New(), LeadID: p.LeadID, Kind: p.Kind, AssignedTo: p.AssignedTo, DueAt: p.DueAt}, nil
}

type fakeExecutionStore struct {
	executions []Execution
	last       map[string]time.Time
}

func (s *fakeExecutionStore) Insert(ctx context.Context, e Execution) (Execution, error) {
	e.ID = uuid.New()
	s.executions = append(s.executions, e)
	if s.last == nil {
		s.last = make(map[string]time.Time)
	}
	s.last[e.RuleID] = e.ExecutedAt
	return e, nil
}

func (s *fakeExecutionStore) LastExecution(ctx context.Context, ruleID string) (time.Time, bool, error) {
	at, ok := s.last[ruleID]
	return at, ok, nil
}

type staticConfig struct{}

func (staticConfig) GetFollowUpTaskTTL() time.Duration { return 24 * time.Hour }

func staleLead(stage, status string, age time.Duration, asOf time.Time) leadsrepo.Lead {
	return leadsrepo.Lead{
		ID:           uuid.New(),
		ConsumerName: "Consumer",
		Stage:        stage,
		Status:       status,
		OwnerID:      uuid.New(),
		CreatedAt:    asOf.Add(-age),
	}
}

func testRule(actions Actions) Rule {
	return Rule{
		ID:        "stale-first-call",
		Enabled:   true,
		Frequency: FrequencyEveryTick,
		Trigger: Trigger{
			DaysWithoutContact: 3,
			Stages:             []string{domain.StageFirstCall},
			ExcludedStatuses:   []string{domain.StatusAwaitingReturn},
		},
		Actions: actions,
	}
}

func newEngine(rules []Rule, leads *fakeLeadSource, attempts *fakeAttemptSource, router *fakeRouter, taskLedger *fakeTaskLedger, store *fakeExecutionStore) *Engine {
	return NewEngine(rules, leads, attempts, router, taskLedger, store, nil, logger.New("development"), staticConfig{})
}

func TestEvaluateDue_AppliesAllActionsToCandidates(t *testing.T) {
	asOf := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	lead := staleLead(domain.StageFirstCall, domain.StatusActive, 96*time.Hour, asOf)

	leads := &fakeLeadSource{leads: []leadsrepo.Lead{lead}}
	router := &fakeRouter{target: uuid.New()}
	taskLedger := &fakeTaskLedger{}
	store := &fakeExecutionStore{}
	engine := newEngine(
		[]Rule{testRule(Actions{Redistribute: true, CreateTask: true, BumpPriority: true, Notify: true})},
		leads, &fakeAttemptSource{}, router, taskLedger, store,
	)

	executions, err := engine.EvaluateDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("EvaluateDue returned error: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("expected one execution, got %d", len(executions))
	}

	e := executions[0]
	if e.Candidates != 1 || e.Successes != 1 || e.Failures != 0 {
		t.Fatalf("unexpected execution counts: %+v", e)
	}
	if e.Redistributed != 1 || e.TasksCreated != 1 || e.PriorityBumps != 1 || e.Notifications != 1 {
		t.Fatalf("unexpected action counts: %+v", e)
	}
	if len(taskLedger.created) != 1 {
		t.Fatalf("expected one task, got %d", len(taskLedger.created))
	}
	// The follow-up task belongs to the new owner, not the one the lead left.
	if taskLedger.created[0].AssignedTo != router.target {
		t.Fatal("follow-up task must be assigned to the post-redistribution owner")
	}
	if !leads.elevated[lead.ID] {
		t.Fatal("priority bump not applied")
	}
}

func TestEvaluateDue_SkipsNonCandidates(t *testing.T) {
	asOf := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	wrongStage := staleLead(domain.StageRecontact, domain.StatusActive, 96*time.Hour, asOf)
	excludedStatus := staleLead(domain.StageFirstCall, domain.StatusAwaitingReturn, 96*time.Hour, asOf)
	tooFresh := staleLead(domain.StageFirstCall, domain.StatusActive, 24*time.Hour, asOf)
	recentContact := staleLead(domain.StageFirstCall, domain.StatusActive, 96*time.Hour, asOf)

	attempts := &fakeAttemptSource{summaries: map[uuid.UUID]leadsrepo.AttemptSummary{
		recentContact.ID: {Count: 2, LastAttemptAt: asOf.Add(-12 * time.Hour)},
	}}
	leads := &fakeLeadSource{leads: []leadsrepo.Lead{wrongStage, excludedStatus, tooFresh, recentContact}}
	store := &fakeExecutionStore{}
	engine := newEngine([]Rule{testRule(Actions{Notify: true})}, leads, attempts, &fakeRouter{}, &fakeTaskLedger{}, store)

	executions, err := engine.EvaluateDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("EvaluateDue returned error: %v", err)
	}
	if executions[0].Candidates != 0 {
		t.Fatalf("expected no candidates, got %d", executions[0].Candidates)
	}
}

func TestEvaluateDue_AttemptBoundsFilterCandidates(t *testing.T) {
	asOf := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	never := staleLead(domain.StageFirstCall, domain.StatusActive, 96*time.Hour, asOf)
	twice := staleLead(domain.StageFirstCall, domain.StatusActive, 96*time.Hour, asOf)

	one := 1
	rule := testRule(Actions{Notify: true})
	rule.Trigger.MinAttempts = &one

	attempts := &fakeAttemptSource{summaries: map[uuid.UUID]leadsrepo.AttemptSummary{
		twice.ID: {Count: 2, LastAttemptAt: asOf.Add(-96 * time.Hour)},
	}}
	leads := &fakeLeadSource{leads: []leadsrepo.Lead{never, twice}}
	engine := newEngine([]Rule{rule}, leads, attempts, &fakeRouter{}, &fakeTaskLedger{}, &fakeExecutionStore{})

	executions, err := engine.EvaluateDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("EvaluateDue returned error: %v", err)
	}
	// Only the lead with at least one attempt qualifies.
	if executions[0].Candidates != 1 {
		t.Fatalf("expected one candidate, got %d", executions[0].Candidates)
	}
}

func TestEvaluateDue_OneBadLeadNeverAbortsTheBatch(t *testing.T) {
	asOf := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	broken := staleLead(domain.StageFirstCall, domain.StatusActive, 96*time.Hour, asOf)
	healthy := staleLead(domain.StageFirstCall, domain.StatusActive, 96*time.Hour, asOf)

	router := &fakeRouter{
		target:  uuid.New(),
		failFor: map[uuid.UUID]error{broken.ID: distribution.ErrCapacityExhausted},
	}
	leads := &fakeLeadSource{leads: []leadsrepo.Lead{broken, healthy}}
	engine := newEngine([]Rule{testRule(Actions{Redistribute: true})}, leads, &fakeAttemptSource{}, router, &fakeTaskLedger{}, &fakeExecutionStore{})

	executions, err := engine.EvaluateDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("EvaluateDue returned error: %v", err)
	}

	e := executions[0]
	if e.Candidates != 2 || e.Successes != 1 || e.Failures != 1 {
		t.Fatalf("unexpected execution counts: %+v", e)
	}
	if len(e.Errors) != 1 || !strings.Contains(e.Errors[0], broken.ID.String()) {
		t.Fatalf("expected the failure recorded against the broken lead, got %v", e.Errors)
	}
	if len(router.moved) != 1 || router.moved[0] != healthy.ID {
		t.Fatalf("expected the healthy lead redistributed, got %v", router.moved)
	}
}

func TestEvaluateDue_DuplicateFollowUpIsTolerated(t *testing.T) {
	asOf := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	lead := staleLead(domain.StageFirstCall, domain.StatusActive, 96*time.Hour, asOf)

	taskLedger := &fakeTaskLedger{duplicate: map[uuid.UUID]bool{lead.ID: true}}
	leads := &fakeLeadSource{leads: []leadsrepo.Lead{lead}}
	engine := newEngine([]Rule{testRule(Actions{CreateTask: true})}, leads, &fakeAttemptSource{}, &fakeRouter{}, taskLedger, &fakeExecutionStore{})

	executions, err := engine.EvaluateDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("EvaluateDue returned error: %v", err)
	}
	e := executions[0]
	if e.Failures != 0 || e.Successes != 1 || e.TasksCreated != 0 {
		t.Fatalf("an existing open follow-up must not count as a failure: %+v", e)
	}
}

func TestEvaluateDue_DailyRuleRunsOncePerDay(t *testing.T) {
	asOf := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	lead := staleLead(domain.StageFirstCall, domain.StatusActive, 96*time.Hour, asOf)

	rule := testRule(Actions{Notify: true})
	rule.Frequency = FrequencyDaily

	leads := &fakeLeadSource{leads: []leadsrepo.Lead{lead}}
	store := &fakeExecutionStore{}
	engine := newEngine([]Rule{rule}, leads, &fakeAttemptSource{}, &fakeRouter{}, &fakeTaskLedger{}, store)

	for _, tick := range []time.Time{asOf, asOf.Add(30 * time.Minute), asOf.Add(4 * time.Hour)} {
		if _, err := engine.EvaluateDue(context.Background(), tick); err != nil {
			t.Fatalf("EvaluateDue returned error: %v", err)
		}
	}
	if len(store.executions) != 1 {
		t.Fatalf("daily rule must run once per day, ran %d times", len(store.executions))
	}

	// The next calendar day it runs again, whatever the tick time.
	if _, err := engine.EvaluateDue(context.Background(), asOf.Add(26*time.Hour)); err != nil {
		t.Fatalf("EvaluateDue returned error: %v", err)
	}
	if len(store.executions) != 2 {
		t.Fatalf("daily rule must run again the next day, ran %d times", len(store.executions))
	}
}

func TestEvaluateDue_DisabledRuleNeverRuns(t *testing.T) {
	asOf := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	rule := testRule(Actions{Notify: true})
	rule.Enabled = false

	store := &fakeExecutionStore{}
	engine := newEngine([]Rule{rule}, &fakeLeadSource{}, &fakeAttemptSource{}, &fakeRouter{}, &fakeTaskLedger{}, store)

	executions, err := engine.EvaluateDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("EvaluateDue returned error: %v", err)
	}
	if len(executions) != 0 || len(store.executions) != 0 {
		t.Fatal("disabled rules must not run")
	}
}

func TestCalendarDaysBetween(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		from, to time.Time
		want     int
	}{
		{time.Date(2025, 5, 19, 23, 59, 0, 0, loc), time.Date(2025, 5, 20, 0, 1, 0, 0, loc), 1},
		{time.Date(2025, 5, 20, 0, 1, 0, 0, loc), time.Date(2025, 5, 20, 23, 59, 0, 0, loc), 0},
		{time.Date(2025, 5, 17, 12, 0, 0, 0, loc), time.Date(2025, 5, 20, 11, 0, 0, 0, loc), 3},
	}
	for _, c := range cases {
		if got := calendarDaysBetween(c.from, c.to); got != c.want {
			t.Fatalf("calendarDaysBetween(%v, %v) = %d, want %d", c.from, c.to, got, c.want)
		}
	}
}
