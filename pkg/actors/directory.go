// Package actors resolves humans and organizations to their canonical actor.
package actors

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/internal/repositories/actor"
	"github.com/Ramsey-B/trellis/internal/repositories/owner"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Directory is the only component that knows about human and organization ids.
type Directory struct {
	logger ectologger.Logger
	owners owner.OwnerRepository
	actors actor.ActorRepository
}

// NewDirectory creates a new actor directory
func NewDirectory(owners owner.OwnerRepository, actors actor.ActorRepository, logger ectologger.Logger) *Directory {
	return &Directory{
		logger: logger,
		owners: owners,
		actors: actors,
	}
}

// ResolveForHuman returns the human's actor, creating it on first use.
func (d *Directory) ResolveForHuman(ctx context.Context, humanID string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actors.ResolveForHuman")
	defer span.End()

	human, err := d.owners.GetHuman(ctx, humanID)
	if err != nil {
		return nil, err
	}
	if human == nil {
		return nil, engine.NotFound("human %s", humanID)
	}

	return d.ensure(ctx, models.ActorKindHuman, human.ID, human.IsSandboxed)
}

// ResolveForOrganization returns the organization's actor, creating it on first use.
func (d *Directory) ResolveForOrganization(ctx context.Context, organizationID string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actors.ResolveForOrganization")
	defer span.End()

	org, err := d.owners.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, engine.NotFound("organization %s", organizationID)
	}

	return d.ensure(ctx, models.ActorKindOrganization, org.ID, false)
}

// Resolve dispatches on the owner kind.
func (d *Directory) Resolve(ctx context.Context, kind models.ActorKind, ownerID string) (*models.Actor, error) {
	switch kind {
	case models.ActorKindHuman:
		return d.ResolveForHuman(ctx, ownerID)
	case models.ActorKindOrganization:
		return d.ResolveForOrganization(ctx, ownerID)
	default:
		return nil, engine.InvalidOperation("unknown owner kind %q", kind)
	}
}

func (d *Directory) ensure(ctx context.Context, kind models.ActorKind, ownerRef string, sandboxed bool) (*models.Actor, error) {
	a, created, err := d.actors.EnsureForOwner(ctx, kind, ownerRef, sandboxed)
	if err != nil {
		return nil, err
	}
	if created {
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"actor_id":  a.ID,
			"kind":      kind,
			"owner_ref": ownerRef,
			"sandboxed": a.IsSandboxed,
		}).Info("created actor")
	}
	return a, nil
}

// Get returns the actor or a NotFound error.
func (d *Directory) Get(ctx context.Context, actorID string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actors.Get")
	defer span.End()

	a, err := d.actors.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, engine.NotFound("actor %s", actorID)
	}
	return a, nil
}

// Require fails with NotFound unless every id names an existing actor.
func (d *Directory) Require(ctx context.Context, actorIDs ...string) error {
	found, err := d.ActorsOf(ctx, actorIDs)
	if err != nil {
		return err
	}

	known := make(map[string]struct{}, len(found))
	for _, a := range found {
		known[a.ID] = struct{}{}
	}
	for _, id := range actorIDs {
		if _, ok := known[id]; !ok {
			return engine.NotFound("actor %s", id)
		}
	}
	return nil
}

// RequireActive is Require for actions that start something new. An inactive actor keeps
// its existing edges but fails with InvalidOperation here.
func (d *Directory) RequireActive(ctx context.Context, actorIDs ...string) error {
	found, err := d.ActorsOf(ctx, actorIDs)
	if err != nil {
		return err
	}

	active := make(map[string]bool, len(found))
	for _, a := range found {
		active[a.ID] = a.IsActive
	}
	for _, id := range actorIDs {
		isActive, ok := active[id]
		if !ok {
			return engine.NotFound("actor %s", id)
		}
		if !isActive {
			return engine.InvalidOperation("actor %s is inactive", id)
		}
	}
	return nil
}

// ActorsOf hydrates ids in input order. Unknown and repeated ids are skipped.
func (d *Directory) ActorsOf(ctx context.Context, actorIDs []string) ([]models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actors.ActorsOf")
	defer span.End()

	if len(actorIDs) == 0 {
		return []models.Actor{}, nil
	}

	rows, err := d.actors.ListByIDs(ctx, actorIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Actor, len(rows))
	for _, a := range rows {
		byID[a.ID] = a
	}

	result := make([]models.Actor, 0, len(rows))
	for _, id := range actorIDs {
		a, ok := byID[id]
		if !ok {
			continue
		}
		result = append(result, a)
		delete(byID, id)
	}
	return result, nil
}

// ManagerActors resolves the human actor of every manager of the organization, owner first.
func (d *Directory) ManagerActors(ctx context.Context, organizationID string) ([]models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actors.ManagerActors")
	defer span.End()

	org, err := d.owners.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, engine.NotFound("organization %s", organizationID)
	}

	humanIDs, err := d.owners.ListManagerHumanIDs(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	managers := make([]models.Actor, 0, len(humanIDs))
	for _, humanID := range humanIDs {
		a, err := d.ResolveForHuman(ctx, humanID)
		if err != nil {
			return nil, err
		}
		managers = append(managers, *a)
	}
	return managers, nil
}

// Deactivate marks the actor inactive. Actors are never deleted.
func (d *Directory) Deactivate(ctx context.Context, actorID string) error {
	ctx, span := tracing.StartSpan(ctx, "actors.Deactivate")
	defer span.End()

	updated, err := d.actors.SetActive(ctx, actorID, false)
	if err != nil {
		return err
	}
	if !updated {
		return engine.NotFound("actor %s", actorID)
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{"actor_id": actorID}).Info("deactivated actor")
	return nil
}

// SetSandboxed moves the actor into or out of the void realm.
func (d *Directory) SetSandboxed(ctx context.Context, actorID string, sandboxed bool) error {
	ctx, span := tracing.StartSpan(ctx, "actors.SetSandboxed")
	defer span.End()

	updated, err := d.actors.SetSandboxed(ctx, actorID, sandboxed)
	if err != nil {
		return err
	}
	if !updated {
		return engine.NotFound("actor %s", actorID)
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"actor_id":  actorID,
		"sandboxed": sandboxed,
	}).Info("updated actor sandbox")
	return nil
}
