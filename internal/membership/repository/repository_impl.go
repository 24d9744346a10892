package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/membership/domain"
	"github.com/smallbiznis/orgservice/internal/membership/rbac"
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

func (r *repository) Create(ctx context.Context, m *domain.Membership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *repository) Get(ctx context.Context, orgID, userID snowflake.ID) (*domain.Membership, error) {
	return r.first(r.db.WithContext(ctx).Where("org_id = ? AND user_id = ?", orgID, userID))
}

func (r *repository) GetForUpdate(ctx context.Context, orgID, userID snowflake.ID) (*domain.Membership, error) {
	return r.first(r.forUpdate(ctx).Where("org_id = ? AND user_id = ?", orgID, userID))
}

func (r *repository) GetPresidentForUpdate(ctx context.Context, orgID snowflake.ID) (*domain.Membership, error) {
	return r.first(r.forUpdate(ctx).Where("org_id = ? AND role = ?", orgID, rbac.RolePresident))
}

func (r *repository) UpdateRole(ctx context.Context, id snowflake.ID, role rbac.Role, updatedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"role":       role,
			"updated_at": updatedAt,
		}).Error
}

func (r *repository) UpdateVerification(ctx context.Context, id snowflake.ID, verified bool, verifiedBy *snowflake.ID, verifiedAt *time.Time, updatedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_verified": verified,
			"verified_by": verifiedBy,
			"verified_at": verifiedAt,
			"updated_at":  updatedAt,
		}).Error
}

func (r *repository) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Delete(&domain.Membership{}, "id = ?", id).Error
}

func (r *repository) DeleteByOrg(ctx context.Context, orgID snowflake.ID) error {
	return r.db.WithContext(ctx).Delete(&domain.Membership{}, "org_id = ?", orgID).Error
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Membership, error) {
	query := r.db.WithContext(ctx).
		Where("org_id = ? AND is_verified = ?", filter.OrgID, filter.Verified)
	if filter.AfterID != 0 {
		query = query.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []*domain.Membership
	if err := query.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.UserMembership, error) {
	var items []domain.UserMembership
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id AS org_id, o.name AS org_name, o.slug AS org_slug, m.role, m.is_verified, m.joined_at
		 FROM memberships m
		 JOIN organizations o ON o.id = m.org_id
		 WHERE m.user_id = ?
		 ORDER BY m.joined_at ASC, m.id ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *repository) CountByRole(ctx context.Context, orgID snowflake.ID, role rbac.Role) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("org_id = ? AND role = ?", orgID, role).
		Count(&count).Error
	return count, err
}

// forUpdate adds a row lock where the dialect has one. SQLite serializes
// writers on its own.
func (r *repository) forUpdate(ctx context.Context) *gorm.DB {
	query := r.db.WithContext(ctx)
	if db.IsSQLite(r.db) {
		return query
	}
	return query.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *repository) first(query *gorm.DB) (*domain.Membership, error) {
	var m domain.Membership
	err := query.Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
