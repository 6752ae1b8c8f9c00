package notification

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// NotificationRepository defines the interface for notification persistence. Every mutation
// is scoped by recipient so a mismatched caller touches zero rows.
type NotificationRepository interface {
	Create(ctx context.Context, notification models.Notification) error
	ListForRecipient(ctx context.Context, recipientActorID string, limit int, after *models.NotificationCursor) ([]models.Notification, error)
	CountUnreadBySource(ctx context.Context, recipientActorID string) (map[string]int, error)
	MarkRead(ctx context.Context, id, recipientActorID string) (int64, error)
	MarkAllSeen(ctx context.Context, recipientActorID string) (int64, error)
	MarkAllRead(ctx context.Context, recipientActorID string) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repository implements NotificationRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new notification repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "notifications"

var columns = []string{
	"id", "recipient_actor_id", "actor_id", "kind", "object_type", "object_id",
	"link_path", "context", "is_seen", "is_read", "created_at",
}

// Create inserts a notification row.
func (r *Repository) Create(ctx context.Context, n models.Notification) error {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.Create")
	defer span.End()

	if n.Context.Data == nil {
		n.Context.Data = map[string]any{}
	}

	ib := r.db.Flavor().NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(n.ID, n.RecipientActorID, n.ActorID, n.Kind, n.ObjectType, n.ObjectID,
		n.LinkPath, n.Context, n.IsSeen, n.IsRead, n.CreatedAt)

	query, args := ib.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"notification_id":    n.ID,
			"recipient_actor_id": n.RecipientActorID,
			"kind":               n.Kind,
		}).Error("failed to create notification")
		return engine.Storage(err, "create notification")
	}

	return nil
}

// ListForRecipient returns up to limit notifications, newest first, optionally continuing
// after a cursor in (created_at, id) order.
func (r *Repository) ListForRecipient(ctx context.Context, recipientActorID string, limit int, after *models.NotificationCursor) ([]models.Notification, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.ListForRecipient")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("recipient_actor_id", recipientActorID))
	if after != nil {
		createdAt := database.Timestamp(after.CreatedAt)
		if after.ID == "" {
			sb.Where(sb.LessThan("created_at", createdAt))
		} else {
			sb.Where(sb.Or(
				sb.LessThan("created_at", createdAt),
				sb.And(sb.Equal("created_at", createdAt), sb.LessThan("id", after.ID)),
			))
		}
	}
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(limit)

	query, args := sb.Build()

	notifications := []models.Notification{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &notifications, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("recipient_actor_id", recipientActorID).Error("failed to list notifications")
		return nil, engine.Storage(err, "list notifications")
	}

	return notifications, nil
}

type sourceCount struct {
	ActorID string `db:"actor_id"`
	Total   int    `db:"total"`
}

// CountUnreadBySource groups the recipient's unread notifications by source actor so the
// caller can drop blocked sources before summing.
func (r *Repository) CountUnreadBySource(ctx context.Context, recipientActorID string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.CountUnreadBySource")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select("actor_id", sb.As("COUNT(*)", "total"))
	sb.From(tableName)
	sb.Where(
		sb.Equal("recipient_actor_id", recipientActorID),
		sb.Equal("is_read", false),
	)
	sb.GroupBy("actor_id")

	query, args := sb.Build()

	var rows []sourceCount
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("recipient_actor_id", recipientActorID).Error("failed to count unread notifications")
		return nil, engine.Storage(err, "count unread notifications")
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ActorID] = row.Total
	}
	return counts, nil
}

// MarkRead marks one notification seen and read if it belongs to the recipient.
func (r *Repository) MarkRead(ctx context.Context, id, recipientActorID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.MarkRead")
	defer span.End()

	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("is_read", true),
		ub.Assign("is_seen", true),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("recipient_actor_id", recipientActorID),
	)

	return r.exec(ctx, ub.Build, "mark notification read", map[string]any{
		"notification_id":    id,
		"recipient_actor_id": recipientActorID,
	})
}

// MarkAllSeen marks every unseen notification of the recipient seen.
func (r *Repository) MarkAllSeen(ctx context.Context, recipientActorID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.MarkAllSeen")
	defer span.End()

	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(ub.Assign("is_seen", true))
	ub.Where(
		ub.Equal("recipient_actor_id", recipientActorID),
		ub.Equal("is_seen", false),
	)

	return r.exec(ctx, ub.Build, "mark notifications seen", map[string]any{
		"recipient_actor_id": recipientActorID,
	})
}

// MarkAllRead marks every unread notification of the recipient seen and read.
func (r *Repository) MarkAllRead(ctx context.Context, recipientActorID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.MarkAllRead")
	defer span.End()

	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("is_read", true),
		ub.Assign("is_seen", true),
	)
	ub.Where(
		ub.Equal("recipient_actor_id", recipientActorID),
		ub.Equal("is_read", false),
	)

	return r.exec(ctx, ub.Build, "mark notifications read", map[string]any{
		"recipient_actor_id": recipientActorID,
	})
}

// DeleteReadBefore purges read notifications created before cutoff.
func (r *Repository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.DeleteReadBefore")
	defer span.End()

	dlb := r.db.Flavor().NewDeleteBuilder()
	dlb.DeleteFrom(tableName)
	dlb.Where(
		dlb.Equal("is_read", true),
		dlb.LessThan("created_at", database.Timestamp(cutoff)),
	)

	return r.exec(ctx, dlb.Build, "delete read notifications", map[string]any{
		"cutoff": cutoff,
	})
}

func (r *Repository) exec(ctx context.Context, build func() (string, []any), action string, fields map[string]any) (int64, error) {
	query, args := build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Errorf("failed to %s", action)
		return 0, engine.Storage(err, action)
	}

	return database.RowsAffected(res), nil
}
