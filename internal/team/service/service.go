// Package service provides the team directory: the single owner of
// team-member capacity bookkeeping. All load mutations funnel through one
// serialization point so concurrent assignments cannot lose counter updates.
package service

import (
	"context"
	"errors"
	"sync"

	"leadrouter_backend/internal/team/repository"
	"leadrouter_backend/platform/apperr"

	"github.com/google/uuid"
)

// Store defines the data access interface needed by the directory.
type Store interface {
	List(ctx context.Context) ([]repository.Member, error)
	ListActive(ctx context.Context) ([]repository.Member, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Member, error)
	Director(ctx context.Context) (repository.Member, error)
	Create(ctx context.Context, p repository.CreateMemberParams) (repository.Member, error)
	Update(ctx context.Context, id uuid.UUID, p repository.UpdateMemberParams) (repository.Member, error)
	AdjustActiveLeads(ctx context.Context, id uuid.UUID, delta int) error
	TransferActiveLead(ctx context.Context, fromID, toID uuid.UUID) error
	Utilization(ctx context.Context) (active int, capacity int, err error)
}

// Directory holds commercial-team members and their capacity bookkeeping.
type Directory struct {
	store Store

	// mu serializes load mutations. The counter updates themselves are
	// atomic SQL, but the read-check-increment sequence in Assign must not
	// interleave with another assignment of the same member.
	mu sync.Mutex
}

// NewDirectory creates a team directory backed by the given store.
func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Members returns all team members.
func (d *Directory) Members(ctx context.Context) ([]repository.Member, error) {
	return d.store.List(ctx)
}

// ActiveMembers returns active members in tie-break order.
func (d *Directory) ActiveMembers(ctx context.Context) ([]repository.Member, error) {
	return d.store.ListActive(ctx)
}

// Member returns a single member by id.
func (d *Directory) Member(ctx context.Context, id uuid.UUID) (repository.Member, error) {
	m, err := d.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Member{}, apperr.NotFound("team member not found")
	}
	return m, err
}

// Director returns the active escalation target.
func (d *Directory) Director(ctx context.Context) (repository.Member, error) {
	return d.store.Director(ctx)
}

// CreateMember adds a member to the team.
func (d *Directory) CreateMember(ctx context.Context, p repository.CreateMemberParams) (repository.Member, error) {
	if p.Capacity <= 0 {
		return repository.Member{}, apperr.Validation("capacity must be positive")
	}
	if p.Role != "" && p.Role != repository.RoleAgent && p.Role != repository.RoleDirector {
		return repository.Member{}, apperr.Validation("role must be agent or director")
	}
	return d.store.Create(ctx, p)
}

// UpdateMember patches a member's mutable attributes.
func (d *Directory) UpdateMember(ctx context.Context, id uuid.UUID, p repository.UpdateMemberParams) (repository.Member, error) {
	if p.Capacity != nil && *p.Capacity <= 0 {
		return repository.Member{}, apperr.Validation("capacity must be positive")
	}
	m, err := d.store.Update(ctx, id, p)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Member{}, apperr.NotFound("team member not found")
	}
	return m, err
}

// Assign increments the member's active-lead count for a new lead.
func (d *Directory) Assign(ctx context.Context, memberID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.AdjustActiveLeads(ctx, memberID, 1)
}

// Release decrements the member's active-lead count when a lead leaves the
// active set (qualified, lost).
func (d *Directory) Release(ctx context.Context, memberID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.AdjustActiveLeads(ctx, memberID, -1)
}

// Reassign moves one lead's worth of load between members as a single atomic
// operation. When previousID is nil only the increment side applies.
func (d *Directory) Reassign(ctx context.Context, previousID *uuid.UUID, nextID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if previousID == nil {
		return d.store.AdjustActiveLeads(ctx, nextID, 1)
	}
	if *previousID == nextID {
		return nil
	}
	return d.store.TransferActiveLead(ctx, *previousID, nextID)
}

// Utilization returns team-wide load as a ratio together with the raw sums.
// A team with zero capacity reports zero utilization.
func (d *Directory) Utilization(ctx context.Context) (ratio float64, active int, capacity int, err error) {
	active, capacity, err = d.store.Utilization(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	if capacity == 0 {
		return 0, active, capacity, nil
	}
	return float64(active) / float64(capacity), active, capacity, nil
}
