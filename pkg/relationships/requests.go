package relationships

import (
	"context"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// SendFollowRequest asks target to accept requester as a follower. Pending and accepted
// requests are returned unchanged; a declined request is reopened.
func (e *Engine) SendFollowRequest(ctx context.Context, requesterActorID, targetActorID string) (models.FollowRequestStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.SendFollowRequest")
	defer span.End()

	if requesterActorID == targetActorID {
		return "", engine.InvalidOperation("an actor cannot follow itself")
	}
	if err := e.actors.RequireActive(ctx, requesterActorID, targetActorID); err != nil {
		return "", err
	}
	if err := e.ensureNotBlocked(ctx, requesterActorID, targetActorID); err != nil {
		return "", err
	}

	existing, err := e.requests.Get(ctx, requesterActorID, targetActorID)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.Status != models.FollowStatusDeclined {
		metrics.RecordFollowTransition("send", false)
		return existing.Status, nil
	}

	charged, err := e.checkRateLimit(ctx, requesterActorID)
	if err != nil {
		return "", err
	}

	var opened bool
	if existing == nil {
		opened, err = e.requests.InsertPending(ctx, requesterActorID, targetActorID)
	} else {
		opened, err = e.requests.Transition(ctx, requesterActorID, targetActorID, models.FollowStatusDeclined, models.FollowStatusPending)
	}
	if err != nil {
		return "", err
	}
	metrics.RecordFollowTransition("send", opened)

	if !opened {
		// a concurrent call got there first; report whatever it left behind
		if charged {
			e.releaseRateLimit(ctx, requesterActorID)
		}
		return e.FollowStatus(ctx, requesterActorID, targetActorID)
	}

	e.logger.WithContext(ctx).WithFields(pairData(requesterActorID, targetActorID)).Info("follow request sent")

	e.notify(ctx, targetActorID, models.NotificationEvent{
		SourceActorID: requesterActorID,
		Kind:          models.NotificationKindFollowRequest,
		ObjectType:    "actor",
		ObjectID:      requesterActorID,
		LinkPath:      "/actors/" + requesterActorID,
	})
	e.emitter.Emit(ctx, events.FollowRequested, requesterActorID, targetActorID, nil)

	return models.FollowStatusPending, nil
}

// AcceptFollowRequest is performed by target. It returns false when the request is no longer
// pending, so a second concurrent accept is a no-op. A block between the pair fails with Blocked.
func (e *Engine) AcceptFollowRequest(ctx context.Context, requesterActorID, targetActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.AcceptFollowRequest")
	defer span.End()

	if requesterActorID == targetActorID {
		return false, engine.InvalidOperation("an actor cannot follow itself")
	}
	if err := e.ensureNotBlocked(ctx, requesterActorID, targetActorID); err != nil {
		return false, err
	}

	var accepted bool
	err := database.RunInTx(ctx, e.db, func(ctx context.Context) error {
		ok, err := e.requests.Transition(ctx, requesterActorID, targetActorID, models.FollowStatusPending, models.FollowStatusAccepted)
		if err != nil || !ok {
			return err
		}
		if err := e.follows.Activate(ctx, requesterActorID, targetActorID); err != nil {
			return err
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	metrics.RecordFollowTransition("accept", accepted)

	if !accepted {
		return false, nil
	}

	e.logger.WithContext(ctx).WithFields(pairData(requesterActorID, targetActorID)).Info("follow request accepted")

	e.notify(ctx, requesterActorID, models.NotificationEvent{
		SourceActorID: targetActorID,
		Kind:          models.NotificationKindFollowAccepted,
		ObjectType:    "actor",
		ObjectID:      targetActorID,
		LinkPath:      "/actors/" + targetActorID,
	})
	e.emitter.Emit(ctx, events.FollowAccepted, requesterActorID, targetActorID, nil)
	e.projectFollow(ctx, requesterActorID, targetActorID)

	return true, nil
}

// DeclineFollowRequest is performed by target. Returns false unless the request was pending.
func (e *Engine) DeclineFollowRequest(ctx context.Context, requesterActorID, targetActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.DeclineFollowRequest")
	defer span.End()

	declined, err := e.requests.Transition(ctx, requesterActorID, targetActorID, models.FollowStatusPending, models.FollowStatusDeclined)
	if err != nil {
		return false, err
	}
	metrics.RecordFollowTransition("decline", declined)

	if declined {
		e.emitter.Emit(ctx, events.FollowDeclined, requesterActorID, targetActorID, nil)
	}
	return declined, nil
}

// CancelFollowRequest is performed by requester and removes a pending request.
func (e *Engine) CancelFollowRequest(ctx context.Context, requesterActorID, targetActorID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.CancelFollowRequest")
	defer span.End()

	canceled, err := e.requests.DeleteWithStatus(ctx, requesterActorID, targetActorID, models.FollowStatusPending)
	if err != nil {
		return false, err
	}
	metrics.RecordFollowTransition("cancel", canceled)

	if canceled {
		e.emitter.Emit(ctx, events.FollowCanceled, requesterActorID, targetActorID, nil)
	}
	return canceled, nil
}

// FollowStatus reports the request state for the ordered pair, none when there is no row.
func (e *Engine) FollowStatus(ctx context.Context, requesterActorID, targetActorID string) (models.FollowRequestStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.FollowStatus")
	defer span.End()

	request, err := e.requests.Get(ctx, requesterActorID, targetActorID)
	if err != nil {
		return "", err
	}
	if request == nil {
		return models.FollowStatusNone, nil
	}
	return request.Status, nil
}

// IncomingRequests lists pending requests addressed to actorID, newest first. Requests
// from actors on either side of a block are hidden.
func (e *Engine) IncomingRequests(ctx context.Context, actorID string) ([]models.FollowRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "relationships.IncomingRequests")
	defer span.End()

	requests, err := e.requests.ListIncoming(ctx, actorID, models.FollowStatusPending)
	if err != nil {
		return nil, err
	}

	blocked, err := e.blocks.BlockSet(ctx, actorID)
	if err != nil {
		return nil, err
	}

	visible := requests[:0]
	for _, r := range requests {
		if !blocked.Contains(r.RequesterActorID) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

func (e *Engine) ensureNotBlocked(ctx context.Context, a, b string) error {
	blocked, err := e.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return err
	}
	if blocked {
		return engine.Blocked("a block exists between %s and %s", a, b)
	}
	return nil
}

// checkRateLimit fails open when the limiter itself is unavailable. charged reports whether
// a hit was counted.
func (e *Engine) checkRateLimit(ctx context.Context, requesterActorID string) (charged bool, err error) {
	if e.limiter == nil {
		return false, nil
	}

	allowed, err := e.limiter.Allow(ctx, requesterActorID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("requester_actor_id", requesterActorID).Warn("follow request rate limiter unavailable")
		return false, nil
	}
	if !allowed {
		metrics.RecordFollowTransition("send", false)
		return true, engine.RateLimited("too many follow requests from %s", requesterActorID)
	}
	return true, nil
}

func (e *Engine) releaseRateLimit(ctx context.Context, requesterActorID string) {
	if err := e.limiter.Release(ctx, requesterActorID); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("requester_actor_id", requesterActorID).Warn("failed to release follow request rate limit")
	}
}
