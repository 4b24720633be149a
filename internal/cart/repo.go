package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
)

// Repository persists carts and their items.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
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

func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	if cart.Status == "" {
		cart.Status = enums.CartStatusActive
	}
	return r.db.WithContext(ctx).Create(cart).Error
}

// FindActiveForOwner loads the newest active cart the owner holds in the store.
func (r *Repository) FindActiveForOwner(ctx context.Context, storeID uuid.UUID, owner Owner) (*models.Cart, error) {
	var cart models.Cart
	err := owner.scope(r.db.WithContext(ctx)).
		Preload("Items", orderItems).
		Where("store_id = ? AND status = ?", storeID, enums.CartStatusActive).
		Order("created_at DESC").
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindForOwner loads a cart with items in any status.
func (r *Repository) FindForOwner(ctx context.Context, id uuid.UUID, owner Owner) (*models.Cart, error) {
	var cart models.Cart
	err := owner.scope(r.db.WithContext(ctx)).
		Preload("Items", orderItems).
		Where("id = ?", id).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// LockActive reads an active owned cart FOR UPDATE. Terminal carts are not found.
func (r *Repository) LockActive(ctx context.Context, id uuid.UUID, owner Owner) (*models.Cart, error) {
	var cart models.Cart
	err := owner.scope(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})).
		Where("id = ? AND status = ?", id, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// LockActiveByID locks an active cart regardless of owner. Background jobs only.
func (r *Repository) LockActiveByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND status = ?", id, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *Repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := orderItems(r.db.WithContext(ctx).Where("cart_id = ?", cartID)).Find(&items).Error
	return items, err
}

func (r *Repository) InsertItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItemQuantity touches quantity only; the insert-only columns stay frozen.
func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *Repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&models.CartItem{})
	return res.RowsAffected == 1, res.Error
}

// WriteTotals is the only writer of the derived cart aggregates.
func (r *Repository) WriteTotals(ctx context.Context, cartID uuid.UUID, subtotal, discount, total decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"subtotal": subtotal,
			"discount": discount,
			"total":    total,
		}).Error
}

func (r *Repository) SetPromotion(ctx context.Context, cartID uuid.UUID, promotionID *uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("promotion_id", promotionID).Error
}

// MarkTerminal moves an active cart to status and stamps abandoned_at.
func (r *Repository) MarkTerminal(ctx context.Context, cartID uuid.UUID, status enums.CartStatus, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusActive).
		Updates(map[string]any{
			"status":       status,
			"abandoned_at": at,
		}).Error
}

// ListStaleActiveIDs returns active carts untouched since before, oldest first.
func (r *Repository) ListStaleActiveIDs(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("status = ? AND updated_at < ?", enums.CartStatusActive, before).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}
