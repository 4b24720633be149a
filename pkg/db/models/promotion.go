package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/blendpoint-backend/pkg/db/types"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
)

// Promotion is a discount code. UsedCount only moves together with a PromotionUsage insert.
type Promotion struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code               string             `gorm:"column:code;not null;uniqueIndex"`
	Description        string             `gorm:"column:description"`
	DiscountType       enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	DiscountValue      decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinimumOrderAmount decimal.Decimal    `gorm:"column:minimum_order_amount;type:numeric(12,2);not null;default:0"`
	ValidFrom          *time.Time         `gorm:"column:valid_from"`
	ValidTo            *time.Time         `gorm:"column:valid_to"`
	UsageLimit         *int               `gorm:"column:usage_limit"`
	UsagePerUserLimit  *int               `gorm:"column:usage_per_user_limit"`
	UsedCount          int                `gorm:"column:used_count;not null;default:0"`
	IsActive           bool               `gorm:"column:is_active;not null"`
	StoreIDs           dbtypes.UUIDArray  `gorm:"column:store_ids"`
	CategoryIDs        dbtypes.UUIDArray  `gorm:"column:category_ids"`
	ProductIDs         dbtypes.UUIDArray  `gorm:"column:product_ids"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Promotion) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// PromotionUsage is the append-only record of one granted discount.
type PromotionUsage struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PromotionID    uuid.UUID       `gorm:"column:promotion_id;type:uuid;not null;index"`
	CustomerID     *uuid.UUID      `gorm:"column:customer_id;type:uuid;index"`
	CartID         *uuid.UUID      `gorm:"column:cart_id;type:uuid"`
	OrderID        *uuid.UUID      `gorm:"column:order_id;type:uuid"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (u *PromotionUsage) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}
