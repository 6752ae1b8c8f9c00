package followrequest

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

// FollowRequestRepository defines the interface for follow request persistence. Every
// mutation is a single conditional statement so concurrent callers cannot both win.
type FollowRequestRepository interface {
	Get(ctx context.Context, requesterActorID, targetActorID string) (*models.FollowRequest, error)
	InsertPending(ctx context.Context, requesterActorID, targetActorID string) (bool, error)
	Transition(ctx context.Context, requesterActorID, targetActorID string, from, to models.FollowRequestStatus) (bool, error)
	DeleteWithStatus(ctx context.Context, requesterActorID, targetActorID string, status models.FollowRequestStatus) (bool, error)
	ListIncoming(ctx context.Context, targetActorID string, status models.FollowRequestStatus) ([]models.FollowRequest, error)
}

// Repository implements FollowRequestRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new follow request repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "follow_requests"

var columns = []string{"requester_actor_id", "target_actor_id", "status", "created_at", "updated_at"}

// Get gets the request row for an ordered pair. Returns nil when there is none.
func (r *Repository) Get(ctx context.Context, requesterActorID, targetActorID string) (*models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRequestRepository.Get")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("requester_actor_id", requesterActorID),
		sb.Equal("target_actor_id", targetActorID),
	)

	query, args := sb.Build()

	var request models.FollowRequest
	if err := database.Executor(ctx, r.db).GetContext(ctx, &request, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_actor_id": requesterActorID,
			"target_actor_id":    targetActorID,
		}).Error("failed to get follow request")
		return nil, engine.Storage(err, "get follow request")
	}

	return &request, nil
}

// InsertPending creates a pending row unless the pair already has one in any status.
// Returns false when a row already existed.
func (r *Repository) InsertPending(ctx context.Context, requesterActorID, targetActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRequestRepository.InsertPending")
	defer span.End()

	now := database.Now()
	ib := database.NewInsertBuilder(r.db.Flavor())
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(requesterActorID, targetActorID, string(models.FollowStatusPending), now, now)
	ib.OnConflictDoNothing("requester_actor_id", "target_actor_id")

	query, args := ib.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_actor_id": requesterActorID,
			"target_actor_id":    targetActorID,
		}).Error("failed to insert follow request")
		return false, engine.Storage(err, "insert follow request")
	}

	return database.RowsAffected(res) > 0, nil
}

// Transition moves the row from one status to another. Returns false when the row was not
// in the from status, which is how stale transitions are detected.
func (r *Repository) Transition(ctx context.Context, requesterActorID, targetActorID string, from, to models.FollowRequestStatus) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRequestRepository.Transition")
	defer span.End()

	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", string(to)),
		ub.Assign("updated_at", database.Now()),
	)
	ub.Where(
		ub.Equal("requester_actor_id", requesterActorID),
		ub.Equal("target_actor_id", targetActorID),
		ub.Equal("status", string(from)),
	)

	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_actor_id": requesterActorID,
			"target_actor_id":    targetActorID,
			"from":               from,
			"to":                 to,
		}).Error("failed to transition follow request")
		return false, engine.Storage(err, "transition follow request")
	}

	return database.RowsAffected(res) > 0, nil
}

// DeleteWithStatus removes the row only while it has the given status.
func (r *Repository) DeleteWithStatus(ctx context.Context, requesterActorID, targetActorID string, status models.FollowRequestStatus) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRequestRepository.DeleteWithStatus")
	defer span.End()

	dlb := r.db.Flavor().NewDeleteBuilder()
	dlb.DeleteFrom(tableName)
	dlb.Where(
		dlb.Equal("requester_actor_id", requesterActorID),
		dlb.Equal("target_actor_id", targetActorID),
		dlb.Equal("status", string(status)),
	)

	query, args := dlb.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_actor_id": requesterActorID,
			"target_actor_id":    targetActorID,
			"status":             status,
		}).Error("failed to delete follow request")
		return false, engine.Storage(err, "delete follow request")
	}

	return database.RowsAffected(res) > 0, nil
}

// ListIncoming returns requests addressed to the actor with the given status, newest first.
func (r *Repository) ListIncoming(ctx context.Context, targetActorID string, status models.FollowRequestStatus) ([]models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "FollowRequestRepository.ListIncoming")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("target_actor_id", targetActorID),
		sb.Equal("status", string(status)),
	)
	sb.OrderBy("updated_at").Desc()

	query, args := sb.Build()

	requests := []models.FollowRequest{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("target_actor_id", targetActorID).Error("failed to list incoming follow requests")
		return nil, engine.Storage(err, "list incoming follow requests")
	}

	return requests, nil
}
