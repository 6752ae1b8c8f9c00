package owner

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

// OwnerRepository reads the human and organization records actors are created for.
// Those tables belong to the account system; nothing here writes them.
type OwnerRepository interface {
	GetHuman(ctx context.Context, id string) (*models.Human, error)
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	ListManagerHumanIDs(ctx context.Context, organizationID string) ([]string, error)
}

// Repository implements OwnerRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new owner repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const (
	humansTable        = "humans"
	organizationsTable = "organizations"
	managersTable      = "organization_managers"
)

// GetHuman gets a human by ID. Returns nil when it does not exist.
func (r *Repository) GetHuman(ctx context.Context, id string) (*models.Human, error) {
	ctx, span := tracing.StartSpan(ctx, "OwnerRepository.GetHuman")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select("id", "display_name", "is_sandboxed", "created_at")
	sb.From(humansTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var human models.Human
	if err := database.Executor(ctx, r.db).GetContext(ctx, &human, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("human_id", id).Error("failed to get human")
		return nil, engine.Storage(err, "get human")
	}

	return &human, nil
}

// GetOrganization gets an organization by ID. Returns nil when it does not exist.
func (r *Repository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "OwnerRepository.GetOrganization")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select("id", "name", "owner_human_id", "created_at")
	sb.From(organizationsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var org models.Organization
	if err := database.Executor(ctx, r.db).GetContext(ctx, &org, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("organization_id", id).Error("failed to get organization")
		return nil, engine.Storage(err, "get organization")
	}

	return &org, nil
}

// ListManagerHumanIDs returns the owner of the organization followed by every listed
// manager, without duplicates. Unknown organizations yield an empty list.
func (r *Repository) ListManagerHumanIDs(ctx context.Context, organizationID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "OwnerRepository.ListManagerHumanIDs")
	defer span.End()

	org, err := r.GetOrganization(ctx, organizationID)
	if err != nil || org == nil {
		return nil, err
	}

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select("human_id")
	sb.From(managersTable)
	sb.Where(sb.Equal("organization_id", organizationID))
	sb.OrderBy("created_at", "human_id")

	query, args := sb.Build()

	var managers []string
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &managers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("organization_id", organizationID).Error("failed to list organization managers")
		return nil, engine.Storage(err, "list organization managers")
	}

	seen := map[string]bool{org.OwnerHumanID: true}
	ids := []string{org.OwnerHumanID}
	for _, id := range managers {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	return ids, nil
}
