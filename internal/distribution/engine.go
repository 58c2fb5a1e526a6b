// Package distribution selects responsible team members for inbound leads
// and moves ownership when a lead times out or is manually redistributed.
// The engine owns the per-lead serialization point: every ownership change,
// manual or automatic, goes through Redistribute under the lead's token.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"leadrouter_backend/internal/events"
	teamrepo "leadrouter_backend/internal/team/repository"
	"leadrouter_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrNoCandidate indicates no ordinary team member is eligible: all inactive,
// at capacity, or excluded. Callers escalate to the director role.
var ErrNoCandidate = errors.New("no eligible team member available")

// ErrCapacityExhausted indicates even the director cannot take the lead.
// This is a hard failure the caller must surface as a capacity alert.
var ErrCapacityExhausted = errors.New("team and director at capacity")

// Directory is the team view the engine selects from and books load against.
type Directory interface {
	ActiveMembers(ctx context.Context) ([]teamrepo.Member, error)
	Director(ctx context.Context) (teamrepo.Member, error)
	Assign(ctx context.Context, memberID uuid.UUID) error
	Release(ctx context.Context, memberID uuid.UUID) error
	Reassign(ctx context.Context, previousID *uuid.UUID, nextID uuid.UUID) error
}

// OwnerStore persists lead ownership changes.
type OwnerStore interface {
	UpdateOwner(ctx context.Context, leadID, newOwnerID, previousOwnerID uuid.UUID) error
}

// LeadRef carries the lead attributes distribution decisions depend on.
type LeadRef struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	ProductTags      []string
	PriorityElevated bool
}

// Assignment is the outcome of a successful selection.
type Assignment struct {
	Member uuid.UUID
	Name   string
	// Escalated is true when the lead landed on the director because no
	// ordinary member was available. This is escalation, not ordinary
	// redistribution, and is reported distinctly.
	Escalated bool
}

type Engine struct {
	directory Directory
	owners    OwnerStore
	bus       events.Bus
	log       *logger.Logger
	locks     *leadLocks
}

func NewEngine(directory Directory, owners OwnerStore, bus events.Bus, log *logger.Logger) *Engine {
	return &Engine{
		directory: directory,
		owners:    owners,
		bus:       bus,
		log:       log,
		locks:     newLeadLocks(),
	}
}

// LockLead acquires the lead's mutual-exclusion token and returns its
// release function. Exposed so multi-step workflows (expire + redistribute +
// task creation) can hold the token across the whole sequence.
func (e *Engine) LockLead(leadID uuid.UUID) func() {
	return e.locks.acquire(leadID)
}

// SelectResponsible picks the best available ordinary team member for the
// given product interests, excluding the given member ids.
//
// Specialists for the lead's derived categories win when any exist; otherwise
// the full filtered pool competes (a lead is never left unassigned merely for
// lack of a specialist). Ties break by ascending priority rank, then by
// current load. Elevated-priority leads invert that order so they reach the
// least-loaded member fastest.
func (e *Engine) SelectResponsible(ctx context.Context, lead LeadRef, exclude map[uuid.UUID]bool) (teamrepo.Member, error) {
	members, err := e.directory.ActiveMembers(ctx)
	if err != nil {
		return teamrepo.Member{}, fmt.Errorf("list active members: %w", err)
	}

	pool := make([]teamrepo.Member, 0, len(members))
	for _, m := range members {
		if m.IsDirector() || !m.HasCapacity() || exclude[m.ID] {
			continue
		}
		pool = append(pool, m)
	}
	if len(pool) == 0 {
		return teamrepo.Member{}, ErrNoCandidate
	}

	if categories := DeriveCategories(lead.ProductTags); len(categories) > 0 {
		specialists := make([]teamrepo.Member, 0, len(pool))
		for _, m := range pool {
			if hasSpecialty(m.Specialties, categories) {
				specialists = append(specialists, m)
			}
		}
		if len(specialists) > 0 {
			pool = specialists
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if lead.PriorityElevated {
			if a.ActiveLeadCount != b.ActiveLeadCount {
				return a.ActiveLeadCount < b.ActiveLeadCount
			}
			return a.PriorityRank < b.PriorityRank
		}
		if a.PriorityRank != b.PriorityRank {
			return a.PriorityRank < b.PriorityRank
		}
		return a.ActiveLeadCount < b.ActiveLeadCount
	})

	return pool[0], nil
}

// PickForIntake selects an owner for a brand-new lead and reserves one unit
// of the member's capacity. When no ordinary member is available the lead
// goes straight to the director (escalation). The caller must Release the
// reservation if persisting the lead fails afterwards.
func (e *Engine) PickForIntake(ctx context.Context, lead LeadRef) (Assignment, error) {
	member, err := e.SelectResponsible(ctx, lead, nil)
	escalated := false
	if errors.Is(err, ErrNoCandidate) {
		member, err = e.availableDirector(ctx)
		escalated = true
	}
	if err != nil {
		return Assignment{}, err
	}

	if err := e.directory.Assign(ctx, member.ID); err != nil {
		return Assignment{}, fmt.Errorf("reserve capacity: %w", err)
	}

	return Assignment{Member: member.ID, Name: member.Name, Escalated: escalated}, nil
}

// ReleaseIntake undoes a PickForIntake reservation after a failed lead insert.
func (e *Engine) ReleaseIntake(ctx context.Context, memberID uuid.UUID) error {
	return e.directory.Release(ctx, memberID)
}

// Redistribute moves the lead to a new owner, excluding the current one.
// Falls back to the director when no ordinary member is available; returns
// ErrCapacityExhausted when even the director is full. The ownership change
// and the capacity transfer are persisted before events fire; nothing is
// considered committed if either write fails.
func (e *Engine) Redistribute(ctx context.Context, lead LeadRef, reason string) (Assignment, error) {
	unlock := e.locks.acquire(lead.ID)
	defer unlock()

	return e.redistributeLocked(ctx, lead, reason)
}

// RedistributeLocked is Redistribute for callers that already hold the
// lead's token via LockLead.
func (e *Engine) RedistributeLocked(ctx context.Context, lead LeadRef, reason string) (Assignment, error) {
	return e.redistributeLocked(ctx, lead, reason)
}

func (e *Engine) redistributeLocked(ctx context.Context, lead LeadRef, reason string) (Assignment, error) {
	exclude := map[uuid.UUID]bool{lead.OwnerID: true}

	member, err := e.SelectResponsible(ctx, lead, exclude)
	escalated := false
	if errors.Is(err, ErrNoCandidate) {
		member, err = e.availableDirector(ctx)
		escalated = true
	}
	if err != nil {
		return Assignment{}, err
	}

	previous := lead.OwnerID
	if err := e.owners.UpdateOwner(ctx, lead.ID, member.ID, previous); err != nil {
		return Assignment{}, fmt.Errorf("persist owner change: %w", err)
	}
	if err := e.directory.Reassign(ctx, &previous, member.ID); err != nil {
		return Assignment{}, fmt.Errorf("transfer capacity: %w", err)
	}

	if e.log != nil {
		e.log.AssignmentEvent("redistributed", lead.ID.String(), member.ID.String(), escalated)
	}

	if e.bus != nil {
		if escalated {
			e.bus.Publish(ctx, events.LeadEscalated{
				BaseEvent:       events.NewBaseEvent(),
				LeadID:          lead.ID,
				PreviousOwnerID: previous,
				DirectorID:      member.ID,
				Reason:          reason,
			})
		} else {
			e.bus.Publish(ctx, events.LeadRedistributed{
				BaseEvent:       events.NewBaseEvent(),
				LeadID:          lead.ID,
				PreviousOwnerID: previous,
				NewOwnerID:      member.ID,
				Reason:          reason,
			})
		}
	}

	return Assignment{Member: member.ID, Name: member.Name, Escalated: escalated}, nil
}

// EscalateLocked moves the lead straight to the director, skipping ordinary
// selection. Used when redistribution attempts are exhausted. The caller
// must hold the lead's token via LockLead.
func (e *Engine) EscalateLocked(ctx context.Context, lead LeadRef, reason string) (Assignment, error) {
	director, err := e.availableDirector(ctx)
	if err != nil {
		return Assignment{}, err
	}

	previous := lead.OwnerID
	if director.ID == previous {
		return Assignment{Member: director.ID, Name: director.Name, Escalated: true}, nil
	}
	if err := e.owners.UpdateOwner(ctx, lead.ID, director.ID, previous); err != nil {
		return Assignment{}, fmt.Errorf("persist owner change: %w", err)
	}
	if err := e.directory.Reassign(ctx, &previous, director.ID); err != nil {
		return Assignment{}, fmt.Errorf("transfer capacity: %w", err)
	}

	if e.log != nil {
		e.log.AssignmentEvent("escalated", lead.ID.String(), director.ID.String(), true)
	}
	if e.bus != nil {
		e.bus.Publish(ctx, events.LeadEscalated{
			BaseEvent:       events.NewBaseEvent(),
			LeadID:          lead.ID,
			PreviousOwnerID: previous,
			DirectorID:      director.ID,
			Reason:          reason,
		})
	}

	return Assignment{Member: director.ID, Name: director.Name, Escalated: true}, nil
}

// availableDirector returns the director when they can still take a lead.
// A missing or full director converts into ErrCapacityExhausted.
func (e *Engine) availableDirector(ctx context.Context) (teamrepo.Member, error) {
	director, err := e.directory.Director(ctx)
	if errors.Is(err, teamrepo.ErrNoDirector) {
		return teamrepo.Member{}, ErrCapacityExhausted
	}
	if err != nil {
		return teamrepo.Member{}, err
	}
	if !director.HasCapacity() {
		return teamrepo.Member{}, ErrCapacityExhausted
	}
	return director, nil
}
