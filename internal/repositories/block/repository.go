package block

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// BlockRepository defines the interface for block edge persistence
type BlockRepository interface {
	Create(ctx context.Context, blockerActorID, blockedActorID string) (bool, error)
	Delete(ctx context.Context, blockerActorID, blockedActorID string) (bool, error)
	ExistsBetween(ctx context.Context, a, b string) (bool, error)
	ListInvolving(ctx context.Context, actorID string) ([]models.BlockEdge, error)
	ListByBlocker(ctx context.Context, blockerActorID string) ([]models.BlockEdge, error)
}

// Repository implements BlockRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new block repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "block_edges"

var columns = []string{"blocker_actor_id", "blocked_actor_id", "created_at"}

// Create stores a block edge. Returns false when the edge already existed.
func (r *Repository) Create(ctx context.Context, blockerActorID, blockedActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(r.db.Flavor())
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(blockerActorID, blockedActorID, database.Now())
	ib.OnConflictDoNothing("blocker_actor_id", "blocked_actor_id")

	query, args := ib.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"blocker_actor_id": blockerActorID,
			"blocked_actor_id": blockedActorID,
		}).Error("failed to create block edge")
		return false, engine.Storage(err, "create block edge")
	}

	return database.RowsAffected(res) > 0, nil
}

// Delete removes the caller's own edge only. Returns false when there was none.
func (r *Repository) Delete(ctx context.Context, blockerActorID, blockedActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.Delete")
	defer span.End()

	dlb := r.db.Flavor().NewDeleteBuilder()
	dlb.DeleteFrom(tableName)
	dlb.Where(
		dlb.Equal("blocker_actor_id", blockerActorID),
		dlb.Equal("blocked_actor_id", blockedActorID),
	)

	query, args := dlb.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"blocker_actor_id": blockerActorID,
			"blocked_actor_id": blockedActorID,
		}).Error("failed to delete block edge")
		return false, engine.Storage(err, "delete block edge")
	}

	return database.RowsAffected(res) > 0, nil
}

// ExistsBetween reports whether either actor blocks the other.
func (r *Repository) ExistsBetween(ctx context.Context, a, b string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.ExistsBetween")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(tableName)
	sb.Where(sb.Or(
		sb.And(sb.Equal("blocker_actor_id", a), sb.Equal("blocked_actor_id", b)),
		sb.And(sb.Equal("blocker_actor_id", b), sb.Equal("blocked_actor_id", a)),
	))

	query, args := sb.Build()

	var count int
	if err := database.Executor(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_a": a,
			"actor_b": b,
		}).Error("failed to check block edges")
		return false, engine.Storage(err, "check block edges")
	}

	return count > 0, nil
}

// ListInvolving returns every edge where the actor is either side.
func (r *Repository) ListInvolving(ctx context.Context, actorID string) ([]models.BlockEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.ListInvolving")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Or(
		sb.Equal("blocker_actor_id", actorID),
		sb.Equal("blocked_actor_id", actorID),
	))

	query, args := sb.Build()

	edges := []models.BlockEdge{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("actor_id", actorID).Error("failed to list block edges")
		return nil, engine.Storage(err, "list block edges")
	}

	return edges, nil
}

// ListByBlocker returns the edges the actor created, newest first.
func (r *Repository) ListByBlocker(ctx context.Context, blockerActorID string) ([]models.BlockEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.ListByBlocker")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("blocker_actor_id", blockerActorID))
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()

	edges := []models.BlockEdge{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("blocker_actor_id", blockerActorID).Error("failed to list blocked actors")
		return nil, engine.Storage(err, "list blocked actors")
	}

	return edges, nil
}
