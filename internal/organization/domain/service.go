package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/orgservice/internal/membership/domain"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
)

type Service interface {
	Create(ctx context.Context, actor rbac.Actor, req CreateOrganizationRequest) (*OrganizationResponse, error)
	Get(ctx context.Context, actor rbac.Actor, orgID snowflake.ID) (*OrganizationResponse, error)
	Update(ctx context.Context, actor rbac.Actor, orgID snowflake.ID, req UpdateOrganizationRequest) (*OrganizationResponse, error)
	Delete(ctx context.Context, actor rbac.Actor, orgID snowflake.ID) error
	ListForUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
}

type CreateOrganizationRequest struct {
	Name                 string
	Description          string
	Visibility           Visibility
	EnrollmentEnabled    *bool
	EnrollmentKey        *string
	RequiresVerification *bool
	Metadata             map[string]any
}

// UpdateOrganizationRequest is a partial update; nil fields are left as is.
type UpdateOrganizationRequest struct {
	Name                 *string
	Description          *string
	Visibility           *Visibility
	EnrollmentEnabled    *bool
	EnrollmentKey        *string
	ClearEnrollmentKey   bool
	RequiresVerification *bool
	Metadata             map[string]any
}

type OrganizationResponse struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Slug                 string         `json:"slug"`
	Description          string         `json:"description"`
	Visibility           Visibility     `json:"visibility"`
	EnrollmentEnabled    bool           `json:"enrollment_enabled"`
	HasEnrollmentKey     bool           `json:"has_enrollment_key"`
	RequiresVerification bool           `json:"requires_verification"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`

	// Membership of the caller, when there is one.
	Membership *membershipdomain.Membership `json:"membership,omitempty"`
}

type OrganizationListItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Role       rbac.Role `json:"role"`
	IsVerified bool      `json:"is_verified"`
	JoinedAt   time.Time `json:"joined_at"`
}
