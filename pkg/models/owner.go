package models

import "time"

// Human is a person identity owned by the account system. Read only here.
type Human struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	IsSandboxed bool      `db:"is_sandboxed" json:"isSandboxed"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Organization is an organizational identity (a vport). Read only here.
type Organization struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	OwnerHumanID string    `db:"owner_human_id" json:"ownerHumanId"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type OrganizationManager struct {
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	HumanID        string    `db:"human_id" json:"humanId"`
	Role           string    `db:"role" json:"role"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
