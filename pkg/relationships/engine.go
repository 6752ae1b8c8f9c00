// Package relationships owns follow edges, the follow request state machine and block edges.
package relationships

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/internal/repositories/block"
	"github.com/Ramsey-B/trellis/internal/repositories/follow"
	"github.com/Ramsey-B/trellis/internal/repositories/followrequest"
	"github.com/Ramsey-B/trellis/pkg/blocks"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/graph"
	"github.com/Ramsey-B/trellis/pkg/models"
)

type ActorDirectory interface {
	Require(ctx context.Context, actorIDs ...string) error
	RequireActive(ctx context.Context, actorIDs ...string) error
}

type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	BlockSet(ctx context.Context, actorID string) (blocks.Set, error)
}

// Notifier is satisfied by *notifications.Router.
type Notifier interface {
	Notify(ctx context.Context, recipientActorID string, event models.NotificationEvent) error
}

// RequestLimiter is satisfied by *redis.ActorLimiter.
type RequestLimiter interface {
	Allow(ctx context.Context, actorID string) (bool, error)
	Release(ctx context.Context, actorID string) error
}

// FollowProjection is satisfied by *graph.FollowGraph.
type FollowProjection interface {
	FollowActivated(ctx context.Context, followerActorID, followedActorID string) error
	FollowsRemoved(ctx context.Context, edges []models.FollowEdge) error
	Suggestions(ctx context.Context, actorID string, limit int) ([]graph.Suggestion, error)
}

// Dependencies wires the engine. Notifier, Limiter, Emitter and Graph are optional.
type Dependencies struct {
	DB        database.DB
	Actors    ActorDirectory
	Blocks    BlockChecker
	BlockRepo block.BlockRepository
	Follows   follow.FollowRepository
	Requests  followrequest.FollowRequestRepository
	Notifier  Notifier
	Limiter   RequestLimiter
	Emitter   *events.Emitter
	Graph     FollowProjection
}

// Engine is the single writer of follow edges, follow requests and block edges.
type Engine struct {
	logger    ectologger.Logger
	db        database.DB
	actors    ActorDirectory
	blocks    BlockChecker
	blockRepo block.BlockRepository
	follows   follow.FollowRepository
	requests  followrequest.FollowRequestRepository
	notifier  Notifier
	limiter   RequestLimiter
	emitter   *events.Emitter
	graph     FollowProjection
}

// NewEngine creates a new relationship engine
func NewEngine(deps Dependencies, logger ectologger.Logger) *Engine {
	return &Engine{
		logger:    logger,
		db:        deps.DB,
		actors:    deps.Actors,
		blocks:    deps.Blocks,
		blockRepo: deps.BlockRepo,
		follows:   deps.Follows,
		requests:  deps.Requests,
		notifier:  deps.Notifier,
		limiter:   deps.Limiter,
		emitter:   deps.Emitter,
		graph:     deps.Graph,
	}
}

func (e *Engine) notify(ctx context.Context, recipientActorID string, event models.NotificationEvent) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, recipientActorID, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"recipient_actor_id": recipientActorID,
			"source_actor_id":    event.SourceActorID,
			"kind":               event.Kind,
		}).Warn("failed to deliver relationship notification")
	}
}

func (e *Engine) projectFollow(ctx context.Context, followerActorID, followedActorID string) {
	if e.graph == nil {
		return
	}
	if err := e.graph.FollowActivated(ctx, followerActorID, followedActorID); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("failed to project follow edge")
	}
}

func (e *Engine) projectRemoved(ctx context.Context, edges []models.FollowEdge) {
	if e.graph == nil || len(edges) == 0 {
		return
	}
	if err := e.graph.FollowsRemoved(ctx, edges); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("failed to remove projected follow edges")
	}
}

func pairData(requesterActorID, targetActorID string) map[string]any {
	return map[string]any{
		"requester_actor_id": requesterActorID,
		"target_actor_id":    targetActorID,
	}
}
