// Package events emits relationship and notification lifecycle events after they commit
package events

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/kafka"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

const (
	FollowRequested     = "follow.requested"
	FollowAccepted      = "follow.accepted"
	FollowDeclined      = "follow.declined"
	FollowCanceled      = "follow.canceled"
	Unfollowed          = "follow.removed"
	BlockCreated        = "block.created"
	BlockRemoved        = "block.removed"
	NotificationCreated = "notification.created"
	ConversationCreated = "conversation.created"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, event *kafka.RelationshipEvent) error
}

// Emitter publishes events best effort. The state change has already committed by the time
// an event is emitted, so failures are logged and counted, never returned.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter. A nil publisher makes every emit a no-op.
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// Emit publishes one event about actorID, optionally directed at targetActorID.
func (e *Emitter) Emit(ctx context.Context, eventType, actorID, targetActorID string, data map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Emit")
	defer span.End()

	err := e.publisher.PublishEvent(ctx, &kafka.RelationshipEvent{
		EventType:     eventType,
		ActorID:       actorID,
		TargetActorID: targetActorID,
		Data:          data,
	})
	if err != nil {
		metrics.RecordEventPublish(eventType, "error")
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":      eventType,
			"actor_id":        actorID,
			"target_actor_id": targetActorID,
		}).Warnf("Failed to emit %s event", eventType)
		return
	}

	metrics.RecordEventPublish(eventType, "ok")
}
