package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
)

// Cart is owned by a customer or by a guest session token digest, scoped to a store.
// Subtotal, Discount and Total are written only by recalculation.
type Cart struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	StoreID            uuid.UUID        `gorm:"column:store_id;type:uuid;not null"`
	CustomerID         *uuid.UUID       `gorm:"column:customer_id;type:uuid"`
	SessionTokenDigest *string          `gorm:"column:session_token_digest"`
	Status             enums.CartStatus `gorm:"column:status;type:cart_status;not null;default:'active'"`
	Subtotal           decimal.Decimal  `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	Discount           decimal.Decimal  `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Total              decimal.Decimal  `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	PromotionID        *uuid.UUID       `gorm:"column:promotion_id;type:uuid"`
	AbandonedAt        *time.Time       `gorm:"column:abandoned_at"`
	Items              []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
