package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadrouter_backend/internal/distribution"
	leadsrepo "leadrouter_backend/internal/leads/repository"
	"leadrouter_backend/internal/rules"
	"leadrouter_backend/internal/tasks/ledger"
	taskrepo "leadrouter_backend/internal/tasks/repository"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeads struct {
	leads   map[uuid.UUID]leadsrepo.Lead
	listErr error
}

func (f *fakeLeads) ListActive(ctx context.Context) ([]leadsrepo.Lead, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]leadsrepo.Lead, 0, len(f.leads))
	for _, l := range f.leads {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLeads) GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error) {
	l, ok := f.leads[id]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	return l, nil
}

type fakeTasks struct {
	overdue     []taskrepo.Task
	expired     []uuid.UUID
	created     []ledger.CreateTaskParams
	maxAttempts int
}

func (f *fakeTasks) OverdueInitialContact(ctx context.Context, asOf time.Time) ([]taskrepo.Task, error) {
	return f.overdue, nil
}

func (f *fakeTasks) PendingForLead(ctx context.Context, leadID uuid.UUID) ([]taskrepo.Task, error) {
	var out []taskrepo.Task
	for _, t := range f.overdue {
		if t.LeadID == leadID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) ExpireTask(ctx context.Context, taskID uuid.UUID) (taskrepo.Task, error) {
	for _, t := range f.overdue {
		if t.ID == taskID {
			f.expired = append(f.expired, taskID)
			t.Status = taskrepo.StatusExpired
			return t, nil
		}
	}
	return taskrepo.Task{}, ledger.ErrNotFound
}

func (f *fakeTasks) CreateTask(ctx context.Context, p ledger.CreateTaskParams) (taskrepo.Task, error) {
	f.created = append(f.created, p)
	return taskrepo.Task{ID: uuid.New(), LeadID: p.LeadID, Kind: p.Kind, AssignedTo: p.AssignedTo, DueAt: p.DueAt, RedistributionAttempts: p.Attempts}, nil
}

func (f *fakeTasks) MaxAttempts() int {
	if f.maxAttempts == 0 {
		return ledger.DefaultMaxRedistributionAttempts
	}
	return f.maxAttempts
}

type fakeRouter struct {
	assignment   distribution.Assignment
	err          error
	escalations  []uuid.UUID
	redistribute []uuid.UUID
	panicOnLock  bool
}

func (f *fakeRouter) LockLead(leadID uuid.UUID) func() {
	if f.panicOnLock {
		panic("lock table corrupted")
	}
	return func() {}
}

func (f *fakeRouter) RedistributeLocked(ctx context.Context, lead distribution.LeadRef, reason string) (distribution.Assignment, error) {
	if f.err != nil {
		return distribution.Assignment{}, f.err
	}
	f.redistribute = append(f.redistribute, lead.ID)
	return f.assignment, nil
}

func (f *fakeRouter) EscalateLocked(ctx context.Context, lead distribution.LeadRef, reason string) (distribution.Assignment, error) {
	if f.err != nil {
		return distribution.Assignment{}, f.err
	}
	f.escalations = append(f.escalations, lead.ID)
	return distribution.Assignment{Member: f.assignment.Member, Name: f.assignment.Name, Escalated: true}, nil
}

type advisorCall struct {
	kind   string
	leadID uuid.UUID
}

type fakeAdvisor struct {
	calls          []advisorCall
	escalatedToday []int
}

func (f *fakeAdvisor) NoteEscalation(ctx context.Context, leadID, directorID uuid.UUID) error {
	f.calls = append(f.calls, advisorCall{kind: "escalation", leadID: leadID})
	return nil
}

func (f *fakeAdvisor) NoteCapacityExhausted(ctx context.Context, leadID uuid.UUID) error {
	f.calls = append(f.calls, advisorCall{kind: "capacity", leadID: leadID})
	return nil
}

func (f *fakeAdvisor) Evaluate(ctx context.Context, asOf time.Time, escalatedToday int) error {
	f.escalatedToday = append(f.escalatedToday, escalatedToday)
	return nil
}

type fakeRules struct {
	executions []rules.Execution
	err        error
}

func (f *fakeRules) EvaluateDue(ctx context.Context, asOf time.Time) ([]rules.Execution, error) {
	return f.executions, f.err
}

type loopConfig struct{}

func (loopConfig) GetMonitorInterval() time.Duration   { return 30 * time.Minute }
func (loopConfig) GetInitialContactTTL() time.Duration { return 24 * time.Hour }

type virtualClock struct {
	t time.Time
}

func (c *virtualClock) now() time.Time { return c.t }

func (c *virtualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func overdueSetup(attempts int) (*fakeLeads, *fakeTasks, leadsrepo.Lead, taskrepo.Task, *virtualClock) {
	clock := &virtualClock{t: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)}
	lead := leadsrepo.Lead{
		ID:           uuid.New(),
		ConsumerName: "Consumer",
		Stage:        "new",
		Status:       "active",
		OwnerID:      uuid.New(),
		CreatedAt:    clock.t.Add(-25 * time.Hour),
	}
	task := taskrepo.Task{
		ID:                        uuid.New(),
		LeadID:                    lead.ID,
		Kind:                      taskrepo.KindInitialContact,
		Status:                    taskrepo.StatusPending,
		AssignedTo:                lead.OwnerID,
		DueAt:                     clock.t.Add(-time.Hour),
		RedistributionAttempts:    attempts,
		MaxRedistributionAttempts: ledger.DefaultMaxRedistributionAttempts,
	}
	leads := &fakeLeads{leads: map[uuid.UUID]leadsrepo.Lead{lead.ID: lead}}
	tasks := &fakeTasks{overdue: []taskrepo.Task{task}}
	return leads, tasks, lead, task, clock
}

func TestTick_ExpiredInitialContactIsRedistributedWithFreshDeadline(t *testing.T) {
	leads, tasks, lead, task, clock := overdueSetup(0)
	newOwner := uuid.New()
	router := &fakeRouter{assignment: distribution.Assignment{Member: newOwner, Name: "B"}}
	loop := New(leads, tasks, router, &fakeRules{}, &fakeAdvisor{}, logger.New("development"), loopConfig{}, clock.now)

	result := loop.Tick(context.Background())

	if result.TasksClosed != 1 || len(tasks.expired) != 1 || tasks.expired[0] != task.ID {
		t.Fatalf("expected the overdue task expired: %+v", result)
	}
	if result.Redistributed != 1 || len(router.redistribute) != 1 {
		t.Fatalf("expected one redistribution: %+v", result)
	}
	if result.TasksCreated != 1 || len(tasks.created) != 1 {
		t.Fatalf("expected one replacement task: %+v", result)
	}

	replacement := tasks.created[0]
	if replacement.LeadID != lead.ID || replacement.AssignedTo != newOwner {
		t.Fatalf("replacement task misrouted: %+v", replacement)
	}
	if replacement.Attempts != 1 {
		t.Fatalf("expected attempt count 1 on the replacement, got %d", replacement.Attempts)
	}
	if want := clock.t.Add(24 * time.Hour); !replacement.DueAt.Equal(want) {
		t.Fatalf("expected fresh 24h deadline %v, got %v", want, replacement.DueAt)
	}
}

func TestTick_DirectorLandingRaisesEscalationAlertInsteadOfTask(t *testing.T) {
	leads, tasks, lead, _, clock := overdueSetup(0)
	advisor := &fakeAdvisor{}
	router := &fakeRouter{assignment: distribution.Assignment{Member: uuid.New(), Name: "Director", Escalated: true}}
	loop := New(leads, tasks, router, &fakeRules{}, advisor, logger.New("development"), loopConfig{}, clock.now)

	result := loop.Tick(context.Background())

	if result.Escalated != 1 || result.TasksCreated != 0 {
		t.Fatalf("escalation must not create a replacement task: %+v", result)
	}
	if len(advisor.calls) != 1 || advisor.calls[0].kind != "escalation" || advisor.calls[0].leadID != lead.ID {
		t.Fatalf("expected one escalation alert, got %+v", advisor.calls)
	}
}

func TestTick_ExhaustedAttemptsEscalateDirectly(t *testing.T) {
	leads, tasks, lead, _, clock := overdueSetup(ledger.DefaultMaxRedistributionAttempts)
	advisor := &fakeAdvisor{}
	router := &fakeRouter{assignment: distribution.Assignment{Member: uuid.New(), Name: "Director"}}
	loop := New(leads, tasks, router, &fakeRules{}, advisor, logger.New("development"), loopConfig{}, clock.now)

	result := loop.Tick(context.Background())

	if len(router.redistribute) != 0 {
		t.Fatal("exhausted attempts must skip ordinary redistribution")
	}
	if len(router.escalations) != 1 || router.escalations[0] != lead.ID {
		t.Fatalf("expected direct escalation, got %v", router.escalations)
	}
	if result.Escalated != 1 || len(advisor.calls) != 1 || advisor.calls[0].kind != "escalation" {
		t.Fatalf("expected an escalation alert: %+v / %+v", result, advisor.calls)
	}
}

func TestTick_CapacityExhaustionRaisesCapacityAlert(t *testing.T) {
	leads, tasks, lead, _, clock := overdueSetup(0)
	advisor := &fakeAdvisor{}
	router := &fakeRouter{err: distribution.ErrCapacityExhausted}
	loop := New(leads, tasks, router, &fakeRules{}, advisor, logger.New("development"), loopConfig{}, clock.now)

	result := loop.Tick(context.Background())

	if result.Failed != 1 {
		t.Fatalf("capacity exhaustion must count as a failure: %+v", result)
	}
	if len(advisor.calls) != 1 || advisor.calls[0].kind != "capacity" || advisor.calls[0].leadID != lead.ID {
		t.Fatalf("expected one capacity alert, got %+v", advisor.calls)
	}
}

func TestTick_FetchFailureIsContained(t *testing.T) {
	leads := &fakeLeads{listErr: errors.New("connection refused")}
	loop := New(leads, &fakeTasks{}, &fakeRouter{}, &fakeRules{}, &fakeAdvisor{}, logger.New("development"), loopConfig{}, nil)

	result := loop.Tick(context.Background())
	if result.Failed != 1 || len(result.Errors) != 1 {
		t.Fatalf("expected a recorded failure, got %+v", result)
	}

	// The loop keeps ticking after a failure.
	leads.listErr = nil
	if next := loop.Tick(context.Background()); next.Failed != 0 {
		t.Fatalf("expected a clean follow-up tick, got %+v", next)
	}
}

func TestTick_PanicIsContained(t *testing.T) {
	leads, tasks, _, _, clock := overdueSetup(0)
	router := &fakeRouter{panicOnLock: true}
	loop := New(leads, tasks, router, &fakeRules{}, &fakeAdvisor{}, logger.New("development"), loopConfig{}, clock.now)

	result := loop.Tick(context.Background())
	if result.Failed == 0 || len(result.Errors) == 0 {
		t.Fatalf("expected the panic recorded as a failure, got %+v", result)
	}
}

func TestTick_ReportsDailyEscalationsToAdvisor(t *testing.T) {
	leads, tasks, _, _, clock := overdueSetup(0)
	advisor := &fakeAdvisor{}
	router := &fakeRouter{assignment: distribution.Assignment{Member: uuid.New(), Escalated: true}}
	loop := New(leads, tasks, router, &fakeRules{}, advisor, logger.New("development"), loopConfig{}, clock.now)

	loop.Tick(context.Background())

	if len(advisor.escalatedToday) != 1 || advisor.escalatedToday[0] != 1 {
		t.Fatalf("expected the advisor to see one escalation today, got %v", advisor.escalatedToday)
	}
}

func TestHistory_IsBounded(t *testing.T) {
	leads := &fakeLeads{}
	loop := New(leads, &fakeTasks{}, &fakeRouter{}, &fakeRules{}, nil, logger.New("development"), loopConfig{}, nil)

	for i := 0; i < historyLimit+20; i++ {
		loop.Tick(context.Background())
	}
	if got := len(loop.Results()); got != historyLimit {
		t.Fatalf("expected history capped at %d, got %d", historyLimit, got)
	}
}

func TestTickLead_TargetsOnlyTheGivenLead(t *testing.T) {
	leads, tasks, lead, _, clock := overdueSetup(0)
	router := &fakeRouter{assignment: distribution.Assignment{Member: uuid.New(), Name: "B"}}
	loop := New(leads, tasks, router, &fakeRules{}, &fakeAdvisor{}, logger.New("development"), loopConfig{}, clock.now)

	result := loop.TickLead(context.Background(), lead.ID)
	if result.Redistributed != 1 || result.TasksCreated != 1 {
		t.Fatalf("expected the targeted pass to process the lead: %+v", result)
	}

	if other := loop.TickLead(context.Background(), uuid.New()); other.Redistributed != 0 {
		t.Fatalf("unrelated lead must be untouched: %+v", other)
	}
}
