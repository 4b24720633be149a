package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

// Order is the frozen result of a checkout.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CartID       uuid.UUID         `gorm:"column:cart_id;type:uuid;not null;uniqueIndex"`
	StoreID      uuid.UUID         `gorm:"column:store_id;type:uuid;not null"`
	CustomerID   *uuid.UUID        `gorm:"column:customer_id;type:uuid;index"`
	PromotionID  *uuid.UUID        `gorm:"column:promotion_id;type:uuid"`
	Subtotal     decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Discount     decimal.Decimal   `gorm:"column:discount;type:numeric(12,2);not null"`
	TaxRate      decimal.Decimal   `gorm:"column:tax_rate;type:numeric(6,4);not null"`
	Tax          decimal.Decimal   `gorm:"column:tax;type:numeric(12,2);not null"`
	Total        decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	PointsEarned int64             `gorm:"column:points_earned;not null;default:0"`
	Lines        []types.OrderLine `gorm:"column:lines;type:jsonb;serializer:json;not null"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
