// Package blocks answers block questions for every other component.
// Block edges are written only by the relationships engine.
package blocks

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/internal/repositories/block"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Set is the other party of every block edge touching an actor.
type Set map[string]struct{}

// Contains reports whether actorID is blocked by or blocking the set's owner.
func (s Set) Contains(actorID string) bool {
	_, ok := s[actorID]
	return ok
}

// Registry is the read side of the block edges.
type Registry struct {
	logger ectologger.Logger
	repo   block.BlockRepository
}

// NewRegistry creates a new block registry
func NewRegistry(repo block.BlockRepository, logger ectologger.Logger) *Registry {
	return &Registry{
		logger: logger,
		repo:   repo,
	}
}

// IsBlocked reports whether a block exists between a and b in either direction.
func (r *Registry) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "blocks.IsBlocked")
	defer span.End()

	if a == b {
		return false, nil
	}
	return r.repo.ExistsBetween(ctx, a, b)
}

// BlockSet loads everyone actorID blocks or is blocked by.
func (r *Registry) BlockSet(ctx context.Context, actorID string) (Set, error) {
	ctx, span := tracing.StartSpan(ctx, "blocks.BlockSet")
	defer span.End()

	edges, err := r.repo.ListInvolving(ctx, actorID)
	if err != nil {
		return nil, err
	}

	set := make(Set, len(edges))
	for _, edge := range edges {
		if edge.BlockerActorID == actorID {
			set[edge.BlockedActorID] = struct{}{}
		} else {
			set[edge.BlockerActorID] = struct{}{}
		}
	}
	return set, nil
}

// ListBlocked returns the edges actorID created. Edges pointing at actorID are not disclosed.
func (r *Registry) ListBlocked(ctx context.Context, actorID string) ([]models.BlockEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "blocks.ListBlocked")
	defer span.End()

	return r.repo.ListByBlocker(ctx, actorID)
}
