package rules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execution is the append-only record of one rule run. It is the unit of
// observability for the rule engine.
type Execution struct {
	ID            uuid.UUID `json:"id"`
	RuleID        string    `json:"ruleId"`
	ExecutedAt    time.Time `json:"executedAt"`
	Candidates    int       `json:"candidates"`
	Successes     int       `json:"successes"`
	Failures      int       `json:"failures"`
	Redistributed int       `json:"redistributed"`
	TasksCreated  int       `json:"tasksCreated"`
	PriorityBumps int       `json:"priorityBumps"`
	Notifications int       `json:"notifications"`
	Errors        []string  `json:"errors"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, e Execution) (Execution, error) {
	errs := e.Errors
	if errs == nil {
		errs = []string{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rule_executions (rule_id, executed_at, candidates, successes, failures,
			redistributed, tasks_created, priority_bumps, notifications, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, e.RuleID, e.ExecutedAt, e.Candidates, e.Successes, e.Failures,
		e.Redistributed, e.TasksCreated, e.PriorityBumps, e.Notifications, errs).Scan(&e.ID)
	return e, err
}

// LastExecution returns when the rule last ran. ok is false when it never has.
func (r *Repository) LastExecution(ctx context.Context, ruleID string) (time.Time, bool, error) {
	var at *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT MAX(executed_at)
		FROM rule_executions
		WHERE rule_id = $1
	`, ruleID).Scan(&at)
	if err != nil {
		return time.Time{}, false, err
	}
	if at == nil {
		return time.Time{}, false, nil
	}
	return *at, true, nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Execution, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, rule_id, executed_at, candidates, successes, failures,
			redistributed, tasks_created, priority_bumps, notifications, errors
		FROM rule_executions
		ORDER BY executed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executions := make([]Execution, 0)
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.RuleID, &e.ExecutedAt, &e.Candidates, &e.Successes,
			&e.Failures, &e.Redistributed, &e.TasksCreated, &e.PriorityBumps,
			&e.Notifications, &e.Errors); err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}
