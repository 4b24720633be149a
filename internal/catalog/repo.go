package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

// Reader is the read-only catalog contract the pricing and cart layers depend on.
type Reader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetModifier(ctx context.Context, id uuid.UUID) (*models.Modifier, error)
	GetCreatorMix(ctx context.Context, id uuid.UUID) (*models.CreatorMix, error)
}

// Repository serves catalog lookups from the database. Lookups return
// gorm.ErrRecordNotFound unchanged so callers choose their own error code.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) GetModifier(ctx context.Context, id uuid.UUID) (*models.Modifier, error) {
	var modifier models.Modifier
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&modifier).Error; err != nil {
		return nil, err
	}
	return &modifier, nil
}

func (r *Repository) GetCreatorMix(ctx context.Context, id uuid.UUID) (*models.CreatorMix, error) {
	var mix models.CreatorMix
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&mix).Error; err != nil {
		return nil, err
	}
	return &mix, nil
}

// ListProducts returns active products newest first.
func (r *Repository) ListProducts(ctx context.Context, params pagination.Params) (pagination.Page[models.Product], error) {
	query, err := pagination.Apply(r.db.WithContext(ctx).Model(&models.Product{}).Where("is_active = ?", true), params)
	if err != nil {
		return pagination.Page[models.Product]{}, err
	}

	var rows []models.Product
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.Product]{}, err
	}
	return pagination.Build(rows, params, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}
