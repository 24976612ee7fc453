package model

import (
	"time"
)

// DeviceSession tracks one CLI login attempt end-to-end. The CLI holds the
// polling code; the login code is handed to the alternate, pre-authenticated
// binding path. The two values are distinct so leaking one never lets an
// attacker claim the other.
type DeviceSession struct {
	ID           string     `db:"id" json:"id"`
	PollingCode  string     `db:"polling_code" json:"-"`
	LoginCode    string     `db:"login_code" json:"-"`
	ProjectID    string     `db:"project_id" json:"projectId"`
	BranchID     string     `db:"branch_id" json:"branchId"`
	UserID       *string    `db:"user_id" json:"userId,omitempty"`
	AccessToken  *string    `db:"access_token" json:"-"`
	RefreshToken *string    `db:"refresh_token" json:"-"`
	AuthorizedAt *time.Time `db:"authorized_at" json:"authorizedAt,omitempty"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expiresAt"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// Authorized reports whether a credential has been bound. The credential is
// written as a unit, so the refresh token alone is a reliable marker.
func (s *DeviceSession) Authorized() bool {
	return s.RefreshToken != nil
}

// ExpiredAt reports whether the session is past its expiry at the given
// instant. Expiry is observed from the clock, never stored as a transition.
func (s *DeviceSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Tenancy returns the (project, branch) pair the session is confined to.
func (s *DeviceSession) Tenancy() Tenancy {
	return Tenancy{ProjectID: s.ProjectID, BranchID: s.BranchID}
}

type CreateDeviceSessionParams struct {
	PollingCode string
	LoginCode   string
	ProjectID   string
	BranchID    string
	ExpiresAt   time.Time
}

type DeviceSessionStatus string

const (
	DeviceSessionStatusPending    DeviceSessionStatus = "pending"
	DeviceSessionStatusAuthorized DeviceSessionStatus = "authorized"
	DeviceSessionStatusExpired    DeviceSessionStatus = "expired"
)
