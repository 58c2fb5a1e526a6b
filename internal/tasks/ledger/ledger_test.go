package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadrouter_backend/internal/tasks/repository"

	"github.com/google/uuid"
)

type fakeStore struct {
	tasks map[uuid.UUID]*repository.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[uuid.UUID]*repository.Task)}
}

func (s *fakeStore) Create(ctx context.Context, p repository.CreateTaskParams) (repository.Task, error) {
	for _, t := range s.tasks {
		if t.LeadID == p.LeadID && t.Kind == p.Kind && t.Status == repository.StatusPending {
			return repository.Task{}, repository.ErrDuplicatePending
		}
	}
	t := repository.Task{
		ID:                        uuid.New(),
		LeadID:                    p.LeadID,
		Title:                     p.Title,
		Description:               p.Description,
		Kind:                      p.Kind,
		Status:                    repository.StatusPending,
		AssignedTo:                p.AssignedTo,
		CreatedAt:                 time.Now(),
		DueAt:                     p.DueAt,
		RedistributionAttempts:    p.RedistributionAttempts,
		MaxRedistributionAttempts: p.MaxRedistributionAttempts,
	}
	s.tasks[t.ID] = &t
	return t, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (repository.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return repository.Task{}, repository.ErrNotFound
	}
	return *t, nil
}

func (s *fakeStore) ListByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Task, error) {
	var out []repository.Task
	for _, t := range s.tasks {
		if t.LeadID == leadID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeStore) PendingByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Task, error) {
	var out []repository.Task
	for _, t := range s.tasks {
		if t.LeadID == leadID && t.Status == repository.StatusPending {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeStore) ListPendingDueBefore(ctx context.Context, kind string, before time.Time) ([]repository.Task, error) {
	var out []repository.Task
	for _, t := range s.tasks {
		if t.Kind == kind && t.Status == repository.StatusPending && t.DueAt.Before(before) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeStore) Complete(ctx context.Context, id uuid.UUID, outcome string, note *string, at time.Time) (repository.Task, error) {
	t, ok := s.tasks[id]
	if !ok || t.Status != repository.StatusPending {
		return repository.Task{}, repository.ErrNotFound
	}
	t.Status = repository.StatusCompleted
	t.Outcome = &outcome
	t.Note = note
	t.CompletedAt = &at
	return *t, nil
}

func (s *fakeStore) MarkExpired(ctx context.Context, id uuid.UUID, note string, at time.Time) (repository.Task, error) {
	t, ok := s.tasks[id]
	if !ok || t.Status != repository.StatusPending {
		return repository.Task{}, repository.ErrNotFound
	}
	t.Status = repository.StatusExpired
	t.Note = &note
	t.CompletedAt = &at
	return *t, nil
}

func (s *fakeStore) UpdateAssignee(ctx context.Context, id uuid.UUID, newAssignee uuid.UUID) (repository.Task, error) {
	t, ok := s.tasks[id]
	if !ok || t.Status != repository.StatusPending {
		return repository.Task{}, repository.ErrNotFound
	}
	t.AssignedTo = newAssignee
	t.RedistributionAttempts++
	return *t, nil
}

func (s *fakeStore) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	count := 0
	for _, t := range s.tasks {
		if t.Status == repository.StatusExpired || (t.Status == repository.StatusPending && t.DueAt.Before(now)) {
			count++
		}
	}
	return count, nil
}

type recordedAttempt struct {
	leadID  uuid.UUID
	ownerID uuid.UUID
	channel string
	outcome string
}

type fakeRecorder struct {
	attempts []recordedAttempt
}

func (r *fakeRecorder) RecordAttempt(ctx context.Context, leadID, ownerID uuid.UUID, channel, outcome string, notes *string, at time.Time) error {
	r.attempts = append(r.attempts, recordedAttempt{leadID: leadID, ownerID: ownerID, channel: channel, outcome: outcome})
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTask(t *testing.T, l *Ledger, kind string) repository.Task {
	t.Helper()
	task, err := l.CreateTask(context.Background(), CreateTaskParams{
		LeadID:     uuid.New(),
		Title:      "contact the lead",
		Kind:       kind,
		AssignedTo: uuid.New(),
		DueAt:      time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	return task
}

func TestCreateTask_RejectsDuplicatePending(t *testing.T) {
	l := New(newFakeStore(), nil, nil, 0, nil)
	task := newTask(t, l, repository.KindInitialContact)

	_, err := l.CreateTask(context.Background(), CreateTaskParams{
		LeadID:     task.LeadID,
		Title:      "contact the lead again",
		Kind:       repository.KindInitialContact,
		AssignedTo: task.AssignedTo,
		DueAt:      time.Now().Add(24 * time.Hour),
	})
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("expected ErrDuplicatePending, got %v", err)
	}
}

func TestCreateTask_AllowsNewTaskAfterClose(t *testing.T) {
	l := New(newFakeStore(), nil, nil, 0, nil)
	task := newTask(t, l, repository.KindInitialContact)

	if _, err := l.ExpireTask(context.Background(), task.ID); err != nil {
		t.Fatalf("ExpireTask returned error: %v", err)
	}
	if _, err := l.CreateTask(context.Background(), CreateTaskParams{
		LeadID:     task.LeadID,
		Title:      "contact the lead",
		Kind:       repository.KindInitialContact,
		AssignedTo: task.AssignedTo,
		DueAt:      time.Now().Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("creating after close should succeed, got %v", err)
	}
}

func TestCompleteTask_AppendsContactAttemptForContactKinds(t *testing.T) {
	recorder := &fakeRecorder{}
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	l := New(newFakeStore(), recorder, nil, 0, fixedClock(now))
	task := newTask(t, l, repository.KindInitialContact)

	done, err := l.CompleteTask(context.Background(), task.ID, CompleteTaskParams{Outcome: "answered"})
	if err != nil {
		t.Fatalf("CompleteTask returned error: %v", err)
	}
	if done.Status != repository.StatusCompleted {
		t.Fatalf("expected completed status, got %s", done.Status)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(now) {
		t.Fatalf("expected completion stamped at %v, got %v", now, done.CompletedAt)
	}
	if len(recorder.attempts) != 1 {
		t.Fatalf("expected one recorded attempt, got %d", len(recorder.attempts))
	}
	attempt := recorder.attempts[0]
	if attempt.leadID != task.LeadID || attempt.outcome != "answered" || attempt.channel != "call" {
		t.Fatalf("unexpected attempt record: %+v", attempt)
	}
}

func TestCompleteTask_SkipsContactLogForFinalEvaluation(t *testing.T) {
	recorder := &fakeRecorder{}
	l := New(newFakeStore(), recorder, nil, 0, nil)
	task := newTask(t, l, repository.KindFinalEvaluation)

	if _, err := l.CompleteTask(context.Background(), task.ID, CompleteTaskParams{Outcome: "answered"}); err != nil {
		t.Fatalf("CompleteTask returned error: %v", err)
	}
	if len(recorder.attempts) != 0 {
		t.Fatalf("final evaluation must not log a contact attempt, got %d", len(recorder.attempts))
	}
}

func TestCompleteTask_RejectsClosedTask(t *testing.T) {
	l := New(newFakeStore(), nil, nil, 0, nil)
	task := newTask(t, l, repository.KindFollowUp)

	if _, err := l.CompleteTask(context.Background(), task.ID, CompleteTaskParams{Outcome: "answered"}); err != nil {
		t.Fatalf("first completion returned error: %v", err)
	}
	_, err := l.CompleteTask(context.Background(), task.ID, CompleteTaskParams{Outcome: "answered"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteTask_UnknownTaskIsNotFound(t *testing.T) {
	l := New(newFakeStore(), nil, nil, 0, nil)

	_, err := l.CompleteTask(context.Background(), uuid.New(), CompleteTaskParams{Outcome: "answered"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpireTask_StampsTimeoutNote(t *testing.T) {
	now := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	l := New(newFakeStore(), nil, nil, 0, fixedClock(now))
	task := newTask(t, l, repository.KindInitialContact)

	expired, err := l.ExpireTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("ExpireTask returned error: %v", err)
	}
	if expired.Status != repository.StatusExpired {
		t.Fatalf("expected expired status, got %s", expired.Status)
	}
	if expired.Note == nil || *expired.Note != ExpiredNote {
		t.Fatalf("expected standard timeout note, got %v", expired.Note)
	}
	if expired.CompletedAt == nil || !expired.CompletedAt.Equal(now) {
		t.Fatalf("expected expiry stamped at %v, got %v", now, expired.CompletedAt)
	}
}

func TestReassign_IncrementsAttemptCount(t *testing.T) {
	l := New(newFakeStore(), nil, nil, 0, nil)
	task := newTask(t, l, repository.KindInitialContact)

	next := uuid.New()
	reassigned, escalate, err := l.Reassign(context.Background(), task.ID, next)
	if err != nil {
		t.Fatalf("Reassign returned error: %v", err)
	}
	if escalate {
		t.Fatal("first reassignment must not signal escalation")
	}
	if reassigned.AssignedTo != next {
		t.Fatalf("expected assignee %s, got %s", next, reassigned.AssignedTo)
	}
	if reassigned.RedistributionAttempts != 1 {
		t.Fatalf("expected attempt count 1, got %d", reassigned.RedistributionAttempts)
	}
}

func TestReassign_SignalsEscalationPastMaxAttempts(t *testing.T) {
	l := New(newFakeStore(), nil, nil, 3, nil)
	task := newTask(t, l, repository.KindInitialContact)

	for i := 0; i < 3; i++ {
		if _, escalate, err := l.Reassign(context.Background(), task.ID, uuid.New()); err != nil || escalate {
			t.Fatalf("reassignment %d: escalate=%v err=%v", i+1, escalate, err)
		}
	}

	before, _ := l.Task(context.Background(), task.ID)
	after, escalate, err := l.Reassign(context.Background(), task.ID, uuid.New())
	if err != nil {
		t.Fatalf("Reassign returned error: %v", err)
	}
	if !escalate {
		t.Fatal("fourth reassignment must signal escalation")
	}
	if after.AssignedTo != before.AssignedTo || after.RedistributionAttempts != 3 {
		t.Fatalf("escalation signal must leave the task untouched: %+v", after)
	}
}

func TestReassign_RejectsClosedTask(t *testing.T) {
	l := New(newFakeStore(), nil, nil, 0, nil)
	task := newTask(t, l, repository.KindInitialContact)

	if _, err := l.ExpireTask(context.Background(), task.ID); err != nil {
		t.Fatalf("ExpireTask returned error: %v", err)
	}
	_, _, err := l.Reassign(context.Background(), task.ID, uuid.New())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
