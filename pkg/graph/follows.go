package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

const (
	mergeFollowCypher = `
		MERGE (a:Actor {id: $follower})
		MERGE (b:Actor {id: $followed})
		MERGE (a)-[:FOLLOWS]->(b)
	`
	removeFollowCypher = `
		MATCH (:Actor {id: $follower})-[r:FOLLOWS]->(:Actor {id: $followed})
		DELETE r
	`
	suggestionsCypher = `
		MATCH (me:Actor {id: $actor})-[:FOLLOWS]->(:Actor)-[:FOLLOWS]->(candidate:Actor)
		WHERE candidate.id <> $actor AND NOT (me)-[:FOLLOWS]->(candidate)
		RETURN candidate.id AS actor_id, count(*) AS mutual
		ORDER BY mutual DESC, actor_id ASC
		LIMIT $limit
	`
)

// Suggestion is an actor followed by people the viewer follows.
type Suggestion struct {
	ActorID     string `json:"actorId"`
	MutualCount int64  `json:"mutualCount"`
}

// FollowGraph keeps (:Actor)-[:FOLLOWS]->(:Actor) in sync with active follow edges.
type FollowGraph struct {
	exec   Executor
	logger ectologger.Logger
}

// NewFollowGraph creates a new follow graph projection
func NewFollowGraph(exec Executor, logger ectologger.Logger) *FollowGraph {
	return &FollowGraph{
		exec:   exec,
		logger: logger,
	}
}

// FollowActivated records follower -> followed.
func (g *FollowGraph) FollowActivated(ctx context.Context, followerActorID, followedActorID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.FollowGraph.FollowActivated")
	defer span.End()

	err := g.exec.Write(ctx, mergeFollowCypher, map[string]any{
		"follower": followerActorID,
		"followed": followedActorID,
	})
	if err != nil {
		return fmt.Errorf("failed to project follow %s -> %s: %w", followerActorID, followedActorID, err)
	}
	return nil
}

// FollowsRemoved drops the projected relationship for every severed edge.
func (g *FollowGraph) FollowsRemoved(ctx context.Context, edges []models.FollowEdge) error {
	ctx, span := tracing.StartSpan(ctx, "graph.FollowGraph.FollowsRemoved")
	defer span.End()

	for _, edge := range edges {
		err := g.exec.Write(ctx, removeFollowCypher, map[string]any{
			"follower": edge.FollowerActorID,
			"followed": edge.FollowedActorID,
		})
		if err != nil {
			return fmt.Errorf("failed to remove projected follow %s -> %s: %w", edge.FollowerActorID, edge.FollowedActorID, err)
		}
	}
	return nil
}

// Suggestions returns friends-of-friends ranked by how many followed actors follow them.
func (g *FollowGraph) Suggestions(ctx context.Context, actorID string, limit int) ([]Suggestion, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.FollowGraph.Suggestions")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}

	rows, err := g.exec.Read(ctx, suggestionsCypher, map[string]any{
		"actor": actorID,
		"limit": int64(limit),
	})
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_id": actorID,
		}).Error("failed to query follow suggestions")
		return nil, fmt.Errorf("failed to query follow suggestions: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(rows))
	for _, row := range rows {
		id, _ := row["actor_id"].(string)
		if id == "" {
			continue
		}
		mutual, _ := row["mutual"].(int64)
		suggestions = append(suggestions, Suggestion{ActorID: id, MutualCount: mutual})
	}
	return suggestions, nil
}
