package repository

import (
	"context"
	"errors"
	"time"

	"leadrouter_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Lead struct {
	ID               uuid.UUID
	ConsumerName     string
	ConsumerPhone    string
	ConsumerEmail    *string
	Stage            string
	Status           string
	OwnerID          uuid.UUID
	PreviousOwnerID  *uuid.UUID
	ProductTags      []string
	PriorityElevated bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StageHistoryEntry records one stay in a pipeline stage. Entries are only
// appended and closed, never edited retroactively.
type StageHistoryEntry struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Stage     string
	EnteredAt time.Time
	ExitedAt  *time.Time
}

type CreateLeadParams struct {
	ConsumerName  string
	ConsumerPhone string
	ConsumerEmail *string
	ProductTags   []string
	OwnerID       uuid.UUID
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, consumer_name, consumer_phone, consumer_email, stage, status,
	owner_id, previous_owner_id, product_tags, priority_elevated,
	created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.ConsumerName, &l.ConsumerPhone, &l.ConsumerEmail,
		&l.Stage, &l.Status, &l.OwnerID, &l.PreviousOwnerID,
		&l.ProductTags, &l.PriorityElevated, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

// Create inserts the lead and its opening stage-history entry in one
// transaction.
func (r *Repository) Create(ctx context.Context, p CreateLeadParams) (Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Lead{}, err
	}
	defer tx.Rollback(ctx)

	tags := p.ProductTags
	if tags == nil {
		tags = []string{}
	}

	lead, err := scanLead(tx.QueryRow(ctx, `
		INSERT INTO leads (consumer_name, consumer_phone, consumer_email, owner_id, product_tags)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+leadColumns+`
	`, p.ConsumerName, p.ConsumerPhone, p.ConsumerEmail, p.OwnerID, tags))
	if err != nil {
		return Lead{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_stage_history (lead_id, stage, entered_at)
		VALUES ($1, $2, $3)
	`, lead.ID, domain.StageNew, lead.CreatedAt); err != nil {
		return Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, err
	}
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1
	`, id))
}

func (r *Repository) List(ctx context.Context, limit int) ([]Lead, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListActive returns leads still in play (status not terminal), oldest first
// so monitoring works the longest-waiting leads before newer ones.
func (r *Repository) ListActive(ctx context.Context) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at ASC
	`, domain.StatusQualified, domain.StatusLost)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}

func collectLeads(rows pgx.Rows) ([]Lead, error) {
	leads := make([]Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// UpdateOwner persists a lead ownership change, remembering the previous
// owner for audit and exclusion purposes.
func (r *Repository) UpdateOwner(ctx context.Context, leadID, newOwnerID, previousOwnerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET owner_id = $2, previous_owner_id = $3, updated_at = now()
		WHERE id = $1
	`, leadID, newOwnerID, previousOwnerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, leadID uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, leadID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStage moves the lead to a new pipeline stage: the open history entry is
// closed and a fresh one appended, all in one transaction.
func (r *Repository) SetStage(ctx context.Context, leadID uuid.UUID, stage string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET stage = $2, updated_at = now()
		WHERE id = $1
	`, leadID, stage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE lead_stage_history
		SET exited_at = $2
		WHERE lead_id = $1 AND exited_at IS NULL
	`, leadID, at); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_stage_history (lead_id, stage, entered_at)
		VALUES ($1, $2, $3)
	`, leadID, stage, at); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) SetPriorityElevated(ctx context.Context, leadID uuid.UUID, elevated bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET priority_elevated = $2, updated_at = now()
		WHERE id = $1
	`, leadID, elevated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) StageHistory(ctx context.Context, leadID uuid.UUID) ([]StageHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, stage, entered_at, exited_at
		FROM lead_stage_history
		WHERE lead_id = $1
		ORDER BY entered_at ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]StageHistoryEntry, 0)
	for rows.Next() {
		var e StageHistoryEntry
		if err := rows.Scan(&e.ID, &e.LeadID, &e.Stage, &e.EnteredAt, &e.ExitedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
