package models

import "time"

type ActorKind string

const (
	ActorKindHuman        ActorKind = "human"
	ActorKindOrganization ActorKind = "organization"
)

func (k ActorKind) Valid() bool {
	return k == ActorKindHuman || k == ActorKindOrganization
}

// Actor is the canonical participant behind a human or an organization.
// There is exactly one per (kind, owner_ref).
type Actor struct {
	ID          string    `db:"id" json:"id"`
	Kind        ActorKind `db:"kind" json:"kind"`
	OwnerRef    string    `db:"owner_ref" json:"ownerRef"`
	IsSandboxed bool      `db:"is_sandboxed" json:"isSandboxed"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// TableName returns the database table name
func (Actor) TableName() string {
	return "actors"
}
