package models

import "time"

type FollowRequestStatus string

const (
	// FollowStatusNone is reported when no request row exists for a pair. It is never stored.
	FollowStatusNone     FollowRequestStatus = "none"
	FollowStatusPending  FollowRequestStatus = "pending"
	FollowStatusAccepted FollowRequestStatus = "accepted"
	FollowStatusDeclined FollowRequestStatus = "declined"
)

type FollowEdge struct {
	FollowerActorID string    `db:"follower_actor_id" json:"followerActorId"`
	FollowedActorID string    `db:"followed_actor_id" json:"followedActorId"`
	IsActive        bool      `db:"is_active" json:"isActive"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

type FollowRequest struct {
	RequesterActorID string              `db:"requester_actor_id" json:"requesterActorId"`
	TargetActorID    string              `db:"target_actor_id" json:"targetActorId"`
	Status           FollowRequestStatus `db:"status" json:"status"`
	CreatedAt        time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updatedAt"`
}

// BlockEdge is stored directed but suppresses both directions.
type BlockEdge struct {
	BlockerActorID string    `db:"blocker_actor_id" json:"blockerActorId"`
	BlockedActorID string    `db:"blocked_actor_id" json:"blockedActorId"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
