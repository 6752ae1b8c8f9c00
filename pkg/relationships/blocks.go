package relationships

import (
	"context"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Block records blocker -> blocked and severs the follow relationship in both directions.
// Pending requests are kept; they cannot be accepted while the block exists.
func (e *Engine) Block(ctx context.Context, blockerActorID, blockedActorID string) error {
	ctx, span := tracing.StartSpan(ctx, "relationships.Block")
	defer span.End()

	if blockerActorID == blockedActorID {
		return engine.InvalidOperation("an actor cannot block itself")
	}
	if err := e.actors.Require(ctx, blockerActorID, blockedActorID); err != nil {
		return err
	}

	var (
		created bool
		severed []models.FollowEdge
	)
	err := database.RunInTx(ctx, e.db, func(ctx context.Context) error {
		var err error
		if created, err = e.blockRepo.Create(ctx, blockerActorID, blockedActorID); err != nil {
			return err
		}
		if severed, err = e.follows.DeactivateBetween(ctx, blockerActorID, blockedActorID); err != nil {
			return err
		}
		for _, pair := range [][2]string{{blockerActorID, blockedActorID}, {blockedActorID, blockerActorID}} {
			if _, err := e.requests.DeleteWithStatus(ctx, pair[0], pair[1], models.FollowStatusAccepted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordBlock("block", created)

	if created {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"blocker_actor_id": blockerActorID,
			"blocked_actor_id": blockedActorID,
			"severed_follows":  len(severed),
		}).Info("actor blocked")
		e.emitter.Emit(ctx, events.BlockCreated, blockerActorID, blockedActorID, nil)
	}
	e.projectRemoved(ctx, severed)

	return nil
}

// Unblock removes only the caller's own edge. A block placed by the other side stays.
func (e *Engine) Unblock(ctx context.Context, blockerActorID, blockedActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.Unblock")
	defer span.End()

	removed, err := e.blockRepo.Delete(ctx, blockerActorID, blockedActorID)
	if err != nil {
		return false, err
	}
	metrics.RecordBlock("unblock", removed)

	if removed {
		e.emitter.Emit(ctx, events.BlockRemoved, blockerActorID, blockedActorID, nil)
	}
	return removed, nil
}
