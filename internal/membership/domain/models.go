// Package domain contains the membership model and its contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
	"gorm.io/datatypes"
)

// Membership links one user to one organization.
type Membership struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;uniqueIndex:ux_memberships_org_user,priority:1;index:ix_memberships_org_verified,priority:1" json:"org_id"`
	UserID     snowflake.ID  `gorm:"not null;uniqueIndex:ux_memberships_org_user,priority:2;index" json:"user_id"`
	Role       rbac.Role     `gorm:"type:varchar(16);not null" json:"role"`
	IsVerified bool          `gorm:"not null;default:false;index:ix_memberships_org_verified,priority:2" json:"is_verified"`
	VerifiedBy *snowflake.ID `json:"verified_by,omitempty"`
	VerifiedAt *time.Time    `json:"verified_at,omitempty"`
	JoinedAt   time.Time     `gorm:"not null" json:"joined_at"`
	UpdatedAt  time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Membership) TableName() string { return "memberships" }

type EnrollStatus string

const (
	EnrollStatusVerified            EnrollStatus = "verified"
	EnrollStatusPendingVerification EnrollStatus = "pending_verification"
)

type EnrollResult struct {
	Membership *Membership  `json:"membership"`
	Status     EnrollStatus `json:"status"`
}

// PresidencyTransfer holds both rows touched by a transfer.
type PresidencyTransfer struct {
	President       *Membership `json:"president"`
	FormerPresident *Membership `json:"former_president"`
}

type PageRequest struct {
	PageToken string
	PageSize  int
}

type MemberPage struct {
	Items         []*Membership `json:"items"`
	NextPageToken string        `json:"next_page_token"`
	HasMore       bool          `json:"has_more"`
}

// MembershipEvent is an outbox row written alongside every membership
// mutation.
type MembershipEvent struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID   `gorm:"not null;index" json:"org_id"`
	Topic     string         `gorm:"type:varchar(64);not null" json:"topic"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (MembershipEvent) TableName() string { return "membership_events" }
