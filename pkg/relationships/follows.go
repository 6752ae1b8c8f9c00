package relationships

import (
	"context"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/graph"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Unfollow deactivates follower -> followed and drops the accepted request so the pair can
// go through the request flow again. Returns false when there was nothing to undo.
func (e *Engine) Unfollow(ctx context.Context, followerActorID, followedActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.Unfollow")
	defer span.End()

	var removed bool
	err := database.RunInTx(ctx, e.db, func(ctx context.Context) error {
		deactivated, err := e.follows.Deactivate(ctx, followerActorID, followedActorID)
		if err != nil {
			return err
		}
		deleted, err := e.requests.DeleteWithStatus(ctx, followerActorID, followedActorID, models.FollowStatusAccepted)
		if err != nil {
			return err
		}
		removed = deactivated || deleted
		return nil
	})
	if err != nil {
		return false, err
	}
	metrics.RecordFollowTransition("unfollow", removed)

	if removed {
		e.emitter.Emit(ctx, events.Unfollowed, followerActorID, followedActorID, nil)
		e.projectRemoved(ctx, []models.FollowEdge{{FollowerActorID: followerActorID, FollowedActorID: followedActorID}})
	}
	return removed, nil
}

// Followers lists active edges pointing at actorID.
func (e *Engine) Followers(ctx context.Context, actorID string) ([]models.FollowEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.Followers")
	defer span.End()

	return e.follows.ListFollowers(ctx, actorID)
}

// Following lists active edges from actorID.
func (e *Engine) Following(ctx context.Context, actorID string) ([]models.FollowEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.Following")
	defer span.End()

	return e.follows.ListFollowing(ctx, actorID)
}

// SuggestionsEnabled reports whether a follow graph is wired in.
func (e *Engine) SuggestionsEnabled() bool {
	return e.graph != nil
}

// Suggestions returns friends-of-friends from the follow graph, minus blocked actors.
func (e *Engine) Suggestions(ctx context.Context, actorID string, limit int) ([]graph.Suggestion, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.Suggestions")
	defer span.End()

	if e.graph == nil {
		return nil, engine.InvalidOperation("follow suggestions are not enabled")
	}

	suggestions, err := e.graph.Suggestions(ctx, actorID, limit)
	if err != nil {
		return nil, err
	}

	blocked, err := e.blocks.BlockSet(ctx, actorID)
	if err != nil {
		return nil, err
	}

	result := make([]graph.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if !blocked.Contains(s.ActorID) {
			result = append(result, s)
		}
	}
	return result, nil
}
