package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org *Organization) error
	Get(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetForUpdate(ctx context.Context, id snowflake.ID) (*Organization, error)
	Update(ctx context.Context, org *Organization) error
	Delete(ctx context.Context, id snowflake.ID) error
	SlugExists(ctx context.Context, slug string) (bool, error)
}
