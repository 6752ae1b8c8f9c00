package actor

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

// ActorRepository defines the interface for actor persistence
type ActorRepository interface {
	GetByID(ctx context.Context, id string) (*models.Actor, error)
	GetByOwner(ctx context.Context, kind models.ActorKind, ownerRef string) (*models.Actor, error)
	EnsureForOwner(ctx context.Context, kind models.ActorKind, ownerRef string, sandboxed bool) (*models.Actor, bool, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Actor, error)
	ListByOwners(ctx context.Context, kind models.ActorKind, ownerRefs []string) ([]models.Actor, error)
	SetActive(ctx context.Context, id string, active bool) (bool, error)
	SetSandboxed(ctx context.Context, id string, sandboxed bool) (bool, error)
}

// Repository implements ActorRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new actor repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "actors"

var columns = []string{"id", "kind", "owner_ref", "is_sandboxed", "is_active", "created_at", "updated_at"}

// GetByID gets an actor by ID. Returns nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.GetByID")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	return r.get(ctx, sb, map[string]any{"actor_id": id})
}

// GetByOwner gets the actor of an owner. Returns nil when none has been created yet.
func (r *Repository) GetByOwner(ctx context.Context, kind models.ActorKind, ownerRef string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.GetByOwner")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("kind", string(kind)),
		sb.Equal("owner_ref", ownerRef),
	)

	return r.get(ctx, sb, map[string]any{"kind": kind, "owner_ref": ownerRef})
}

func (r *Repository) get(ctx context.Context, sb *sqlbuilder.SelectBuilder, fields map[string]any) (*models.Actor, error) {
	query, args := sb.Build()

	var actor models.Actor
	if err := database.Executor(ctx, r.db).GetContext(ctx, &actor, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("failed to get actor")
		return nil, engine.Storage(err, "get actor")
	}

	return &actor, nil
}

// EnsureForOwner returns the actor of an owner, creating it when absent. Concurrent callers
// converge on one row through the (kind, owner_ref) unique key. The bool reports creation.
func (r *Repository) EnsureForOwner(ctx context.Context, kind models.ActorKind, ownerRef string, sandboxed bool) (*models.Actor, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.EnsureForOwner")
	defer span.End()

	existing, err := r.GetByOwner(ctx, kind, ownerRef)
	if err != nil || existing != nil {
		return existing, false, err
	}

	now := database.Now()
	ib := database.NewInsertBuilder(r.db.Flavor())
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(uuid.NewString(), string(kind), ownerRef, sandboxed, true, now, now)
	ib.OnConflictDoNothing("kind", "owner_ref")

	query, args := ib.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"kind":      kind,
			"owner_ref": ownerRef,
		}).Error("failed to create actor")
		return nil, false, engine.Storage(err, "create actor")
	}
	created := database.RowsAffected(res) > 0

	actor, err := r.GetByOwner(ctx, kind, ownerRef)
	if err != nil {
		return nil, false, err
	}
	if actor == nil {
		return nil, false, engine.Storage(errors.New("actor missing after insert"), "create actor")
	}

	if created {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"actor_id":  actor.ID,
			"kind":      kind,
			"owner_ref": ownerRef,
		}).Info("created actor")
	}

	return actor, created, nil
}

// ListByIDs returns the actors with the given ids in no particular order. Unknown ids are skipped.
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.ListByIDs")
	defer span.End()

	if len(ids) == 0 {
		return []models.Actor{}, nil
	}

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	return r.list(ctx, sb)
}

// ListByOwners returns the actors of the given owners of one kind.
func (r *Repository) ListByOwners(ctx context.Context, kind models.ActorKind, ownerRefs []string) ([]models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.ListByOwners")
	defer span.End()

	if len(ownerRefs) == 0 {
		return []models.Actor{}, nil
	}

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("kind", string(kind)),
		sb.In("owner_ref", sqlbuilder.Flatten(ownerRefs)...),
	)

	return r.list(ctx, sb)
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Actor, error) {
	query, args := sb.Build()

	actors := []models.Actor{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &actors, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list actors")
		return nil, engine.Storage(err, "list actors")
	}

	return actors, nil
}

// SetActive flips is_active. Returns false when the actor does not exist.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.SetActive")
	defer span.End()

	return r.update(ctx, id, "is_active", active)
}

// SetSandboxed flips is_sandboxed. Returns false when the actor does not exist.
func (r *Repository) SetSandboxed(ctx context.Context, id string, sandboxed bool) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.SetSandboxed")
	defer span.End()

	return r.update(ctx, id, "is_sandboxed", sandboxed)
}

func (r *Repository) update(ctx context.Context, id, column string, value bool) (bool, error) {
	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign(column, value),
		ub.Assign("updated_at", database.Now()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_id": id,
			column:     value,
		}).Error("failed to update actor")
		return false, engine.Storage(err, "update actor")
	}

	return database.RowsAffected(res) > 0, nil
}
