package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/organization/domain"
	"github.com/smallbiznis/orgservice/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, org *domain.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	return first(r.db.WithContext(ctx), id)
}

func (r *repository) GetForUpdate(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	query := r.db.WithContext(ctx)
	if !db.IsSQLite(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first(query, id)
}

func (r *repository) Update(ctx context.Context, org *domain.Organization) error {
	return r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ?", org.ID).
		Updates(map[string]any{
			"name":                  org.Name,
			"description":           org.Description,
			"visibility":            org.Visibility,
			"enrollment_enabled":    org.EnrollmentEnabled,
			"enrollment_key_hash":   org.EnrollmentKeyHash,
			"requires_verification": org.RequiresVerification,
			"metadata":              org.Metadata,
			"updated_at":            org.UpdatedAt,
		}).Error
}

func (r *repository) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Delete(&domain.Organization{}, "id = ?", id).Error
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("slug = ?", slug).
		Count(&count).Error
	return count > 0, err
}

func first(query *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := query.Where("id = ?", id).Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}
