// Package domain contains persistence models for the org service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Organization represents a tenant.
type Organization struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name                 string            `gorm:"type:varchar(255);not null" json:"name"`
	Slug                 string            `gorm:"type:varchar(255);not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Description          string            `gorm:"type:text" json:"description"`
	Visibility           Visibility        `gorm:"type:varchar(16);not null" json:"visibility"`
	EnrollmentEnabled    bool              `gorm:"not null" json:"enrollment_enabled"`
	EnrollmentKeyHash    *string           `gorm:"type:varchar(255)" json:"-"`
	RequiresVerification bool              `gorm:"not null" json:"requires_verification"`
	Metadata             datatypes.JSONMap `json:"metadata"`
	CreatedBy            snowflake.ID      `gorm:"not null" json:"created_by"`
	CreatedAt            time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// HasEnrollmentKey reports whether self-enrollment needs a key.
func (o *Organization) HasEnrollmentKey() bool {
	return o.EnrollmentKeyHash != nil && *o.EnrollmentKeyHash != ""
}
