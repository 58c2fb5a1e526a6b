// Package escalation aggregates capacity, overdue-task, and escalation
// signals into director-facing alerts and recommendations.
package escalation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("alert not found")

// Alert types.
const (
	TypeEscalation       = "escalation"
	TypeCapacityCritical = "capacity_critical"
	TypePerformanceIssue = "performance_issue"
	TypeTimeoutPattern   = "timeout_pattern"
	TypeTeamOverload     = "team_overload"
)

// Severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

type Alert struct {
	ID          uuid.UUID      `json:"id"`
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Resolved    bool           `json:"resolved"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
	AutoResolve bool           `json:"autoResolve"`
	Metadata    map[string]any `json:"metadata"`
}

type InsertAlertParams struct {
	Type        string
	Severity    string
	Message     string
	AutoResolve bool
	Metadata    map[string]any
	CreatedAt   time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const alertColumns = `
	id, type, severity, message, created_at, updated_at,
	resolved, resolved_at, auto_resolve, metadata`

func scanAlert(row pgx.Row) (Alert, error) {
	var a Alert
	err := row.Scan(
		&a.ID, &a.Type, &a.Severity, &a.Message, &a.CreatedAt, &a.UpdatedAt,
		&a.Resolved, &a.ResolvedAt, &a.AutoResolve, &a.Metadata,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	return a, err
}

func (r *Repository) Insert(ctx context.Context, p InsertAlertParams) (Alert, error) {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return scanAlert(r.pool.QueryRow(ctx, `
		INSERT INTO director_alerts (type, severity, message, auto_resolve, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+alertColumns+`
	`, p.Type, p.Severity, p.Message, p.AutoResolve, metadata, p.CreatedAt))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM director_alerts
		WHERE id = $1
	`, id))
}

// LatestUnresolved returns the newest unresolved alert of the given type.
func (r *Repository) LatestUnresolved(ctx context.Context, alertType string) (Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM director_alerts
		WHERE type = $1 AND resolved = false
		ORDER BY created_at DESC
		LIMIT 1
	`, alertType))
}

// Touch updates an unresolved alert in place: the dedup path for repeated
// triggers inside the window.
func (r *Repository) Touch(ctx context.Context, id uuid.UUID, severity string, metadata map[string]any, at time.Time) (Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx, `
		UPDATE director_alerts
		SET severity = $2, metadata = $3, updated_at = $4
		WHERE id = $1 AND resolved = false
		RETURNING `+alertColumns+`
	`, id, severity, metadata, at))
}

// Resolve marks one alert resolved.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID, at time.Time) (Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx, `
		UPDATE director_alerts
		SET resolved = true, resolved_at = $2, updated_at = $2
		WHERE id = $1 AND resolved = false
		RETURNING `+alertColumns+`
	`, id, at))
}

// ResolveAuto resolves every unresolved auto-resolving alert of the given
// type. Alerts flagged non-auto-resolve stay until a human resolves them.
func (r *Repository) ResolveAuto(ctx context.Context, alertType string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE director_alerts
		SET resolved = true, resolved_at = $2, updated_at = $2
		WHERE type = $1 AND resolved = false AND auto_resolve = true
	`, alertType, at)
	return err
}

func (r *Repository) List(ctx context.Context, unresolvedOnly bool, limit int) ([]Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM director_alerts
		WHERE resolved = false OR $1 = false
		ORDER BY created_at DESC
		LIMIT $2
	`, unresolvedOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
