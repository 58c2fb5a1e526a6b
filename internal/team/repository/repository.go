package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("team member not found")

// ErrNoDirector indicates no active director-role member exists.
var ErrNoDirector = errors.New("no active director configured")

// Member roles. Exactly one active director is expected per team; the
// directory treats the lowest-ranked active director as the escalation target.
const (
	RoleAgent    = "agent"
	RoleDirector = "director"
)

type Member struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Role            string
	Active          bool
	Capacity        int
	ActiveLeadCount int
	PriorityRank    int
	Specialties     []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsDirector reports whether the member holds the director role.
func (m Member) IsDirector() bool { return m.Role == RoleDirector }

// HasCapacity reports whether the member can take one more lead.
func (m Member) HasCapacity() bool { return m.ActiveLeadCount < m.Capacity }

type CreateMemberParams struct {
	Name         string
	Email        string
	Role         string
	Capacity     int
	PriorityRank int
	Specialties  []string
}

type UpdateMemberParams struct {
	Name         *string
	Active       *bool
	Capacity     *int
	PriorityRank *int
	Specialties  []string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const memberColumns = `
	id, name, email, role, active, capacity, active_lead_count,
	priority_rank, specialties, created_at, updated_at`

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	err := row.Scan(
		&m.ID, &m.Name, &m.Email, &m.Role, &m.Active, &m.Capacity,
		&m.ActiveLeadCount, &m.PriorityRank, &m.Specialties,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	return m, err
}

func (r *Repository) List(ctx context.Context) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+memberColumns+`
		FROM team_members
		ORDER BY priority_rank ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMembers(rows)
}

// ListActive returns active members only, in tie-break order
// (ascending priority rank, then current load).
func (r *Repository) ListActive(ctx context.Context) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+memberColumns+`
		FROM team_members
		WHERE active = true
		ORDER BY priority_rank ASC, active_lead_count ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMembers(rows)
}

func collectMembers(rows pgx.Rows) ([]Member, error) {
	members := make([]Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Member, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM team_members
		WHERE id = $1
	`, id)
	return scanMember(row)
}

// Director returns the active director-role member with the lowest
// priority rank.
func (r *Repository) Director(ctx context.Context) (Member, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM team_members
		WHERE role = $1 AND active = true
		ORDER BY priority_rank ASC
		LIMIT 1
	`, RoleDirector)

	m, err := scanMember(row)
	if errors.Is(err, ErrNotFound) {
		return Member{}, ErrNoDirector
	}
	return m, err
}

func (r *Repository) Create(ctx context.Context, p CreateMemberParams) (Member, error) {
	role := p.Role
	if role == "" {
		role = RoleAgent
	}
	specialties := p.Specialties
	if specialties == nil {
		specialties = []string{}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO team_members (name, email, role, capacity, priority_rank, specialties)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+memberColumns+`
	`, p.Name, p.Email, role, p.Capacity, p.PriorityRank, specialties)
	return scanMember(row)
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateMemberParams) (Member, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE team_members SET
			name          = COALESCE($2, name),
			active        = COALESCE($3, active),
			capacity      = COALESCE($4, capacity),
			priority_rank = COALESCE($5, priority_rank),
			specialties   = COALESCE($6, specialties),
			updated_at    = now()
		WHERE id = $1
		RETURNING `+memberColumns+`
	`, id, p.Name, p.Active, p.Capacity, p.PriorityRank, p.Specialties)
	return scanMember(row)
}

// AdjustActiveLeads shifts the member's active-lead counter by delta,
// clamping at zero.
func (r *Repository) AdjustActiveLeads(ctx context.Context, id uuid.UUID, delta int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE team_members
		SET active_lead_count = GREATEST(active_lead_count + $2, 0), updated_at = now()
		WHERE id = $1
	`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransferActiveLead moves one unit of load from one member to another in a
// single transaction, so a reassignment can never leave the counters torn.
func (r *Repository) TransferActiveLead(ctx context.Context, fromID, toID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE team_members
		SET active_lead_count = GREATEST(active_lead_count - 1, 0), updated_at = now()
		WHERE id = $1
	`, fromID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE team_members
		SET active_lead_count = active_lead_count + 1, updated_at = now()
		WHERE id = $1
	`, toID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Utilization returns the team-wide active-lead and capacity sums for
// active members.
func (r *Repository) Utilization(ctx context.Context) (active int, capacity int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(active_lead_count), 0), COALESCE(SUM(capacity), 0)
		FROM team_members
		WHERE active = true
	`).Scan(&active, &capacity)
	return active, capacity, err
}
