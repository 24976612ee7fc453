package model

import (
	"time"
)

// PublishableClientKey is the public client identifier a CLI or browser app
// presents before it may create or poll device sessions. It is not a secret;
// possession only proves the caller is acting on behalf of a known client of
// the project, which is what gates session creation and enumeration.
type PublishableClientKey struct {
	ID        string     `db:"id" json:"id"`
	Key       string     `db:"key" json:"key"`
	ProjectID string     `db:"project_id" json:"projectId"`
	BranchID  string     `db:"branch_id" json:"branchId"`
	RevokedAt *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

func (k *PublishableClientKey) Revoked() bool {
	return k.RevokedAt != nil
}

func (k *PublishableClientKey) Tenancy() Tenancy {
	return Tenancy{ProjectID: k.ProjectID, BranchID: k.BranchID}
}

type CreatePublishableClientKeyParams struct {
	Key       string
	ProjectID string
	BranchID  string
}
