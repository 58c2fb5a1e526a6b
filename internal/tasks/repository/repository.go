// Package repository provides persistence for follow-up tasks.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("task not found")

	// ErrDuplicatePending means a pending task of the same (lead, kind)
	// already exists. The caller must close it before opening a new one.
	ErrDuplicatePending = errors.New("pending task of this kind already exists for lead")
)

// Task statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// Task kinds.
const (
	KindInitialContact  = "initial_contact"
	KindFollowUp        = "follow_up"
	KindReschedule      = "reschedule"
	KindFinalEvaluation = "final_evaluation"
)

type Task struct {
	ID                        uuid.UUID
	LeadID                    uuid.UUID
	Title                     string
	Description               *string
	Kind                      string
	Status                    string
	AssignedTo                uuid.UUID
	CreatedAt                 time.Time
	DueAt                     time.Time
	CompletedAt               *time.Time
	Outcome                   *string
	Note                      *string
	RedistributionAttempts    int
	MaxRedistributionAttempts int
}

type CreateTaskParams struct {
	LeadID                    uuid.UUID
	Title                     string
	Description               *string
	Kind                      string
	AssignedTo                uuid.UUID
	DueAt                     time.Time
	RedistributionAttempts    int
	MaxRedistributionAttempts int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `
	id, lead_id, title, description, kind, status, assigned_to,
	created_at, due_at, completed_at, outcome, note,
	redistribution_attempts, max_redistribution_attempts`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.LeadID, &t.Title, &t.Description, &t.Kind, &t.Status,
		&t.AssignedTo, &t.CreatedAt, &t.DueAt, &t.CompletedAt,
		&t.Outcome, &t.Note, &t.RedistributionAttempts, &t.MaxRedistributionAttempts,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// Create inserts a pending task. A partial unique index on (lead_id, kind)
// WHERE status = 'pending' enforces the one-pending-per-kind guard; the
// unique violation maps to ErrDuplicatePending.
func (r *Repository) Create(ctx context.Context, p CreateTaskParams) (Task, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO tasks (lead_id, title, description, kind, assigned_to, due_at,
			redistribution_attempts, max_redistribution_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+taskColumns+`
	`, p.LeadID, p.Title, p.Description, p.Kind, p.AssignedTo, p.DueAt,
		p.RedistributionAttempts, p.MaxRedistributionAttempts))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Task{}, ErrDuplicatePending
		}
		return Task{}, err
	}
	return task, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id))
}

func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (r *Repository) PendingByLead(ctx context.Context, leadID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE lead_id = $1 AND status = $2
		ORDER BY due_at ASC
	`, leadID, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListPendingDueBefore returns pending tasks of the given kind whose deadline
// has passed, oldest deadline first. This is the monitoring loop's work queue.
func (r *Repository) ListPendingDueBefore(ctx context.Context, kind string, before time.Time) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE kind = $1 AND status = $2 AND due_at < $3
		ORDER BY due_at ASC
	`, kind, StatusPending, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]Task, error) {
	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Complete closes a pending task normally. The status guard in the WHERE
// clause makes the transition atomic; no row back means the task was not
// pending (or does not exist) and the caller disambiguates.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, outcome string, note *string, at time.Time) (Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, outcome = $3, note = $4, completed_at = $5
		WHERE id = $1 AND status = $6
		RETURNING `+taskColumns+`
	`, id, StatusCompleted, outcome, note, at, StatusPending))
}

// MarkExpired closes a pending task as timed out.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID, note string, at time.Time) (Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, note = $3, completed_at = $4
		WHERE id = $1 AND status = $5
		RETURNING `+taskColumns+`
	`, id, StatusExpired, note, at, StatusPending))
}

// UpdateAssignee moves a pending task to a new owner and records one more
// redistribution attempt.
func (r *Repository) UpdateAssignee(ctx context.Context, id uuid.UUID, newAssignee uuid.UUID) (Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET assigned_to = $2, redistribution_attempts = redistribution_attempts + 1
		WHERE id = $1 AND status = $3
		RETURNING `+taskColumns+`
	`, id, newAssignee, StatusPending))
}

// CountOverdue returns how many tasks are expired or pending past their
// deadline. This feeds the performance-issue alert thresholds.
func (r *Repository) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE status = $1 OR (status = $2 AND due_at < $3)
	`, StatusExpired, StatusPending, now).Scan(&count)
	return count, err
}
