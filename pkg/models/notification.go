package models

import (
	"time"

	"github.com/Ramsey-B/trellis/pkg/database"
)

const (
	NotificationKindFollowRequest  = "follow_request"
	NotificationKindFollowAccepted = "follow_accepted"
)

type Notification struct {
	ID               string                         `db:"id" json:"id"`
	RecipientActorID string                         `db:"recipient_actor_id" json:"recipientActorId"`
	ActorID          string                         `db:"actor_id" json:"actorId"`
	Kind             string                         `db:"kind" json:"kind"`
	ObjectType       string                         `db:"object_type" json:"objectType"`
	ObjectID         string                         `db:"object_id" json:"objectId"`
	LinkPath         string                         `db:"link_path" json:"linkPath"`
	Context          database.JSONB[map[string]any] `db:"context" json:"context"`
	IsSeen           bool                           `db:"is_seen" json:"isSeen"`
	IsRead           bool                           `db:"is_read" json:"isRead"`
	CreatedAt        time.Time                      `db:"created_at" json:"createdAt"`
}

// NotificationEvent is what happened, independent of who receives it.
type NotificationEvent struct {
	SourceActorID string
	Kind          string
	ObjectType    string
	ObjectID      string
	LinkPath      string
	Context       map[string]any
}

// NotificationCursor is the position of the last notification a caller has seen. ID breaks
// ties between notifications created at the same instant; when empty only CreatedAt is used.
type NotificationCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor that continues after n.
func CursorOf(n Notification) NotificationCursor {
	return NotificationCursor{CreatedAt: n.CreatedAt, ID: n.ID}
}
