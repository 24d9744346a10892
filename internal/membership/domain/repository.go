package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
	"gorm.io/gorm"
)

// ListFilter selects a page of an organization's members ordered by id.
type ListFilter struct {
	OrgID    snowflake.ID
	Verified bool
	AfterID  snowflake.ID
	Limit    int
}

// UserMembership is a membership joined with its organization name.
type UserMembership struct {
	OrgID      snowflake.ID
	OrgName    string
	OrgSlug    string
	Role       rbac.Role
	IsVerified bool
	JoinedAt   time.Time
}

// Repository persists memberships. Lookups return (nil, nil) when the row is
// missing.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, orgID, userID snowflake.ID) (*Membership, error)
	GetForUpdate(ctx context.Context, orgID, userID snowflake.ID) (*Membership, error)
	GetPresidentForUpdate(ctx context.Context, orgID snowflake.ID) (*Membership, error)
	UpdateRole(ctx context.Context, id snowflake.ID, role rbac.Role, updatedAt time.Time) error
	UpdateVerification(ctx context.Context, id snowflake.ID, verified bool, verifiedBy *snowflake.ID, verifiedAt *time.Time, updatedAt time.Time) error
	Delete(ctx context.Context, id snowflake.ID) error
	DeleteByOrg(ctx context.Context, orgID snowflake.ID) error
	List(ctx context.Context, filter ListFilter) ([]*Membership, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]UserMembership, error)
	CountByRole(ctx context.Context, orgID snowflake.ID, role rbac.Role) (int64, error)
}
