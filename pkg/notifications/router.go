// Package notifications delivers notifications to actors and hides anything that crosses a block.
package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/internal/repositories/notification"
	"github.com/Ramsey-B/trellis/pkg/blocks"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/google/uuid"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

const (
	outcomeDelivered = "delivered"
	outcomeBlocked   = "suppressed_block"
	outcomeSelf      = "suppressed_self"
	outcomeSandboxed = "suppressed_sandbox"
	outcomeInactive  = "suppressed_inactive"
)

type ActorDirectory interface {
	ActorsOf(ctx context.Context, actorIDs []string) ([]models.Actor, error)
	ManagerActors(ctx context.Context, organizationID string) ([]models.Actor, error)
}

type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	BlockSet(ctx context.Context, actorID string) (blocks.Set, error)
}

type Router struct {
	logger  ectologger.Logger
	actors  ActorDirectory
	blocks  BlockChecker
	repo    notification.NotificationRepository
	emitter *events.Emitter
}

// NewRouter creates a new notification router. emitter may be nil.
func NewRouter(actors ActorDirectory, blocks BlockChecker, repo notification.NotificationRepository, emitter *events.Emitter, logger ectologger.Logger) *Router {
	return &Router{
		logger:  logger,
		actors:  actors,
		blocks:  blocks,
		repo:    repo,
		emitter: emitter,
	}
}

// Notify stores one notification for recipient. When the pair is blocked, the source is
// sandboxed, either side is inactive or the recipient is the source, nothing is stored and
// nil is returned, exactly as for a delivered notification.
func (r *Router) Notify(ctx context.Context, recipientActorID string, event models.NotificationEvent) error {
	ctx, span := tracing.StartSpan(ctx, "notifications.Notify")
	defer span.End()

	if recipientActorID == event.SourceActorID {
		metrics.RecordNotification(event.Kind, outcomeSelf)
		return nil
	}

	found, err := r.actors.ActorsOf(ctx, []string{recipientActorID, event.SourceActorID})
	if err != nil {
		return err
	}
	var recipient, source *models.Actor
	for i := range found {
		switch found[i].ID {
		case recipientActorID:
			recipient = &found[i]
		case event.SourceActorID:
			source = &found[i]
		}
	}
	if recipient == nil {
		return engine.NotFound("actor %s", recipientActorID)
	}
	if source == nil {
		return engine.NotFound("actor %s", event.SourceActorID)
	}
	if source.IsSandboxed {
		metrics.RecordNotification(event.Kind, outcomeSandboxed)
		return nil
	}
	if !recipient.IsActive || !source.IsActive {
		metrics.RecordNotification(event.Kind, outcomeInactive)
		return nil
	}

	blocked, err := r.blocks.IsBlocked(ctx, recipientActorID, event.SourceActorID)
	if err != nil {
		return err
	}
	if blocked {
		metrics.RecordNotification(event.Kind, outcomeBlocked)
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"recipient_actor_id": recipientActorID,
			"source_actor_id":    event.SourceActorID,
			"kind":               event.Kind,
		}).Debug("notification suppressed by block")
		return nil
	}

	n := models.Notification{
		ID:               uuid.NewString(),
		RecipientActorID: recipientActorID,
		ActorID:          event.SourceActorID,
		Kind:             event.Kind,
		ObjectType:       event.ObjectType,
		ObjectID:         event.ObjectID,
		LinkPath:         event.LinkPath,
		Context:          database.NewJSONB(event.Context),
		CreatedAt:        database.Now(),
	}
	if err := r.repo.Create(ctx, n); err != nil {
		return err
	}
	metrics.RecordNotification(event.Kind, outcomeDelivered)

	r.emitter.Emit(ctx, events.NotificationCreated, event.SourceActorID, recipientActorID, map[string]any{
		"notification_id": n.ID,
		"kind":            n.Kind,
	})
	return nil
}

// NotifyOrganizationManagers runs Notify once per manager actor of the organization. A block
// between the source and one manager only affects that manager. A manager that cannot be
// notified is logged and skipped; an error is returned only when no manager was handled, so a
// retry never duplicates what was already delivered.
func (r *Router) NotifyOrganizationManagers(ctx context.Context, organizationID string, event models.NotificationEvent) error {
	ctx, span := tracing.StartSpan(ctx, "notifications.NotifyOrganizationManagers")
	defer span.End()

	managers, err := r.actors.ManagerActors(ctx, organizationID)
	if err != nil {
		return err
	}

	var errs []error
	for _, manager := range managers {
		if err := r.Notify(ctx, manager.ID, event); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"organization_id":  organizationID,
				"manager_actor_id": manager.ID,
			}).Error("failed to notify organization manager")
			errs = append(errs, err)
		}
	}
	if len(errs) == len(managers) {
		return errors.Join(errs...)
	}
	return nil
}

// ListInbox returns up to limit of the actor's notifications newest first, minus anything
// whose source is on either side of a block with the actor. Filtered rows do not shorten the
// page: further rows are read until it is full or the actor has no older notifications.
func (r *Router) ListInbox(ctx context.Context, actorID string, limit int, after *models.NotificationCursor) ([]models.Notification, error) {
	ctx, span := tracing.StartSpan(ctx, "notifications.ListInbox")
	defer span.End()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	blocked, err := r.blocks.BlockSet(ctx, actorID)
	if err != nil {
		return nil, err
	}

	visible := make([]models.Notification, 0, limit)
	cursor := after
	for len(visible) < limit {
		rows, err := r.repo.ListForRecipient(ctx, actorID, limit, cursor)
		if err != nil {
			return nil, err
		}

		for _, n := range rows {
			if blocked.Contains(n.ActorID) {
				continue
			}
			visible = append(visible, n)
			if len(visible) == limit {
				break
			}
		}

		if len(rows) < limit {
			break
		}
		next := models.CursorOf(rows[len(rows)-1])
		cursor = &next
	}
	return visible, nil
}

// CountUnread counts unread notifications from sources the actor is not blocked with.
func (r *Router) CountUnread(ctx context.Context, actorID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "notifications.CountUnread")
	defer span.End()

	bySource, err := r.repo.CountUnreadBySource(ctx, actorID)
	if err != nil {
		return 0, err
	}

	blocked, err := r.blocks.BlockSet(ctx, actorID)
	if err != nil {
		return 0, err
	}

	total := 0
	for source, n := range bySource {
		if !blocked.Contains(source) {
			total += n
		}
	}
	return total, nil
}

// MarkRead marks one notification read. Another actor's notification is left alone and
// reported as false, never as an error.
func (r *Router) MarkRead(ctx context.Context, id, actorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "notifications.MarkRead")
	defer span.End()

	n, err := r.repo.MarkRead(ctx, id, actorID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkAllSeen marks every notification of the actor seen.
func (r *Router) MarkAllSeen(ctx context.Context, actorID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "notifications.MarkAllSeen")
	defer span.End()

	return r.repo.MarkAllSeen(ctx, actorID)
}

// MarkAllRead marks every notification of the actor seen and read.
func (r *Router) MarkAllRead(ctx context.Context, actorID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "notifications.MarkAllRead")
	defer span.End()

	return r.repo.MarkAllRead(ctx, actorID)
}

// PurgeReadBefore deletes read notifications created before cutoff.
func (r *Router) PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "notifications.PurgeReadBefore")
	defer span.End()

	n, err := r.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.NotificationsPurgedTotal.Add(float64(n))
	return n, nil
}
