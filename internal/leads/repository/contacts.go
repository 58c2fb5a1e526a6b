package repository

import (
	"context"
	"time"

	"leadrouter_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// ContactAttempt is an append-only record of one outreach to a lead.
// Attempts are immutable once created.
type ContactAttempt struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	Channel    string
	Outcome    string
	OwnerID    uuid.UUID
	Notes      *string
	OccurredAt time.Time
	CreatedAt  time.Time
}

type AppendAttemptParams struct {
	LeadID     uuid.UUID
	Channel    string
	Outcome    string
	OwnerID    uuid.UUID
	Notes      *string
	OccurredAt time.Time
}

// AttemptSummary aggregates a lead's contact history for rule evaluation.
type AttemptSummary struct {
	Count         int
	LastAttemptAt time.Time
}

// RecordAttempt appends a contact attempt. When the outcome means the
// customer was actually reached, the lead moves to in-contact status in the
// same transaction. Attempts have no update path.
func (r *Repository) RecordAttempt(ctx context.Context, p AppendAttemptParams) (ContactAttempt, error) {
	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ContactAttempt{}, err
	}
	defer tx.Rollback(ctx)

	var a ContactAttempt
	err = tx.QueryRow(ctx, `
		INSERT INTO contact_attempts (lead_id, channel, outcome, owner_id, notes, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, lead_id, channel, outcome, owner_id, notes, occurred_at, created_at
	`, p.LeadID, p.Channel, p.Outcome, p.OwnerID, p.Notes, occurredAt).Scan(
		&a.ID, &a.LeadID, &a.Channel, &a.Outcome, &a.OwnerID, &a.Notes, &a.OccurredAt, &a.CreatedAt,
	)
	if err != nil {
		return ContactAttempt{}, err
	}

	if domain.ReachedOutcomes[p.Outcome] {
		if _, err := tx.Exec(ctx, `
			UPDATE leads
			SET status = $2, updated_at = now()
			WHERE id = $1 AND status NOT IN ($3, $4)
		`, p.LeadID, domain.StatusInContact, domain.StatusQualified, domain.StatusLost); err != nil {
			return ContactAttempt{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ContactAttempt{}, err
	}
	return a, nil
}

func (r *Repository) ListAttempts(ctx context.Context, leadID uuid.UUID) ([]ContactAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, channel, outcome, owner_id, notes, occurred_at, created_at
		FROM contact_attempts
		WHERE lead_id = $1
		ORDER BY occurred_at DESC, created_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]ContactAttempt, 0)
	for rows.Next() {
		var a ContactAttempt
		if err := rows.Scan(&a.ID, &a.LeadID, &a.Channel, &a.Outcome, &a.OwnerID, &a.Notes, &a.OccurredAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// AttemptSummaries returns per-lead attempt counts and most recent attempt
// times for the given leads. Leads with no attempts are absent from the map.
func (r *Repository) AttemptSummaries(ctx context.Context, leadIDs []uuid.UUID) (map[uuid.UUID]AttemptSummary, error) {
	summaries := make(map[uuid.UUID]AttemptSummary, len(leadIDs))
	if len(leadIDs) == 0 {
		return summaries, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT lead_id, COUNT(*), MAX(occurred_at)
		FROM contact_attempts
		WHERE lead_id = ANY($1)
		GROUP BY lead_id
	`, leadIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var leadID uuid.UUID
		var s AttemptSummary
		if err := rows.Scan(&leadID, &s.Count, &s.LastAttemptAt); err != nil {
			return nil, err
		}
		summaries[leadID] = s
	}
	return summaries, rows.Err()
}
