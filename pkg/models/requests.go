package models

import "time"

type ResolveActorRequest struct {
	OwnerKind ActorKind `json:"ownerKind" validate:"required,oneof=human organization"`
	OwnerID   string    `json:"ownerId" validate:"required"`
}

type ResolveActorResponse struct {
	ActorID string `json:"actorId"`
}

type BatchActorsRequest struct {
	IDs []string `json:"ids" validate:"required,max=500"`
}

type SetSandboxedRequest struct {
	Sandboxed bool `json:"sandboxed"`
}

// FollowRequestBody identifies one follow request by its ordered pair.
type FollowRequestBody struct {
	RequesterActorID string `json:"requesterActorId" validate:"required"`
	TargetActorID    string `json:"targetActorId" validate:"required"`
}

type FollowStatusResponse struct {
	Status FollowRequestStatus `json:"status"`
}

type UnfollowRequest struct {
	FollowerActorID string `json:"followerActorId" validate:"required"`
	FollowedActorID string `json:"followedActorId" validate:"required"`
}

type BlockRequest struct {
	BlockerActorID string `json:"blockerActorId" validate:"required"`
	BlockedActorID string `json:"blockedActorId" validate:"required"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type InboxFlagsRequest struct {
	ConversationID string         `json:"conversationId" validate:"required"`
	ActorID        string         `json:"actorId" validate:"required"`
	Patch          map[string]any `json:"patch" validate:"required"`
}

// InboxEntryRequest addresses one actor's entry in one conversation.
type InboxEntryRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	ActorID        string `json:"actorId" validate:"required"`
}

type InboxToggleRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	ActorID        string `json:"actorId" validate:"required"`
	Value          *bool  `json:"value"`
}

type MarkInboxReadRequest struct {
	ConversationID string  `json:"conversationId" validate:"required"`
	ActorID        string  `json:"actorId" validate:"required"`
	LastMessageID  *string `json:"lastMessageId"`
}

type RecordMessageRequest struct {
	ConversationID string     `json:"conversationId" validate:"required"`
	SenderActorID  string     `json:"senderActorId" validate:"required"`
	MessageID      string     `json:"messageId" validate:"required"`
	SentAt         *time.Time `json:"sentAt"`
}

type OneToOneRequest struct {
	ActorA string `json:"actorA" validate:"required"`
	ActorB string `json:"actorB" validate:"required"`
}

type GroupConversationRequest struct {
	CreatorActorID string   `json:"creatorActorId" validate:"required"`
	MemberActorIDs []string `json:"memberActorIds" validate:"required,min=1,max=256"`
}

type ConversationResponse struct {
	ConversationID string `json:"conversationId"`
}

type NotifyRequest struct {
	RecipientActorID string         `json:"recipientActorId" validate:"required"`
	SourceActorID    string         `json:"sourceActorId" validate:"required"`
	Kind             string         `json:"kind" validate:"required,max=64"`
	ObjectType       string         `json:"objectType" validate:"max=64"`
	ObjectID         string         `json:"objectId" validate:"max=255"`
	LinkPath         string         `json:"linkPath" validate:"max=1024"`
	Context          map[string]any `json:"context"`
}

type NotifyOrganizationRequest struct {
	SourceActorID string         `json:"sourceActorId" validate:"required"`
	Kind          string         `json:"kind" validate:"required,max=64"`
	ObjectType    string         `json:"objectType" validate:"max=64"`
	ObjectID      string         `json:"objectId" validate:"max=255"`
	LinkPath      string         `json:"linkPath" validate:"max=1024"`
	Context       map[string]any `json:"context"`
}

type MarkNotificationReadRequest struct {
	ID      string `json:"id" validate:"required"`
	ActorID string `json:"actorId" validate:"required"`
}

type ActorScopedRequest struct {
	ActorID string `json:"actorId" validate:"required"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}
