package follow

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// FollowRepository defines the interface for follow edge persistence
type FollowRepository interface {
	Activate(ctx context.Context, followerActorID, followedActorID string) error
	Deactivate(ctx context.Context, followerActorID, followedActorID string) (bool, error)
	DeactivateBetween(ctx context.Context, a, b string) ([]models.FollowEdge, error)
	Get(ctx context.Context, followerActorID, followedActorID string) (*models.FollowEdge, error)
	ListFollowers(ctx context.Context, actorID string) ([]models.FollowEdge, error)
	ListFollowing(ctx context.Context, actorID string) ([]models.FollowEdge, error)
}

// Repository implements FollowRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new follow edge repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "follow_edges"

var columns = []string{"follower_actor_id", "followed_actor_id", "is_active", "created_at", "updated_at"}

// Activate creates the edge or reactivates an inactive one. There is never more than one
// row per ordered pair.
func (r *Repository) Activate(ctx context.Context, followerActorID, followedActorID string) error {
	ctx, span := tracing.StartSpan(ctx, "FollowRepository.Activate")
	defer span.End()

	now := database.Now()
	ib := database.NewInsertBuilder(r.db.Flavor())
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(followerActorID, followedActorID, true, now, now)
	ib.OnConflictUpdate([]string{"follower_actor_id", "followed_actor_id"}, "is_active", "updated_at")

	query, args := ib.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"follower_actor_id": followerActorID,
			"followed_actor_id": followedActorID,
		}).Error("failed to activate follow edge")
		return engine.Storage(err, "activate follow edge")
	}

	return nil
}

// Deactivate marks an active edge inactive. Returns false when there was no active edge.
func (r *Repository) Deactivate(ctx context.Context, followerActorID, followedActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRepository.Deactivate")
	defer span.End()

	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("is_active", false),
		ub.Assign("updated_at", database.Now()),
	)
	ub.Where(
		ub.Equal("follower_actor_id", followerActorID),
		ub.Equal("followed_actor_id", followedActorID),
		ub.Equal("is_active", true),
	)

	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"follower_actor_id": followerActorID,
			"followed_actor_id": followedActorID,
		}).Error("failed to deactivate follow edge")
		return false, engine.Storage(err, "deactivate follow edge")
	}

	return database.RowsAffected(res) > 0, nil
}

// DeactivateBetween severs active edges in both directions and returns the ones it severed.
func (r *Repository) DeactivateBetween(ctx context.Context, a, b string) ([]models.FollowEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRepository.DeactivateBetween")
	defer span.End()

	var severed []models.FollowEdge
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		ok, err := r.Deactivate(ctx, pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		if ok {
			severed = append(severed, models.FollowEdge{FollowerActorID: pair[0], FollowedActorID: pair[1]})
		}
	}

	return severed, nil
}

// Get gets the edge for an ordered pair, active or not. Returns nil when it never existed.
func (r *Repository) Get(ctx context.Context, followerActorID, followedActorID string) (*models.FollowEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRepository.Get")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("follower_actor_id", followerActorID),
		sb.Equal("followed_actor_id", followedActorID),
	)

	query, args := sb.Build()

	var edge models.FollowEdge
	if err := database.Executor(ctx, r.db).GetContext(ctx, &edge, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"follower_actor_id": followerActorID,
			"followed_actor_id": followedActorID,
		}).Error("failed to get follow edge")
		return nil, engine.Storage(err, "get follow edge")
	}

	return &edge, nil
}

// ListFollowers returns the active edges pointing at the actor, newest first.
func (r *Repository) ListFollowers(ctx context.Context, actorID string) ([]models.FollowEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRepository.ListFollowers")
	defer span.End()

	return r.listActive(ctx, "followed_actor_id", actorID)
}

// ListFollowing returns the active edges the actor holds, newest first.
func (r *Repository) ListFollowing(ctx context.Context, actorID string) ([]models.FollowEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRepository.ListFollowing")
	defer span.End()

	return r.listActive(ctx, "follower_actor_id", actorID)
}

func (r *Repository) listActive(ctx context.Context, column, actorID string) ([]models.FollowEdge, error) {
	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal(column, actorID),
		sb.Equal("is_active", true),
	)
	sb.OrderBy("updated_at").Desc()

	query, args := sb.Build()

	edges := []models.FollowEdge{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			column: actorID,
		}).Error("failed to list follow edges")
		return nil, engine.Storage(err, "list follow edges")
	}

	return edges, nil
}
