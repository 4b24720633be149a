package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

// CartItem is a priced cart line. UnitPrice and Snapshot are insert-only.
type CartItem struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CartID      uuid.UUID          `gorm:"column:cart_id;type:uuid;not null;index"`
	Kind        enums.CartItemKind `gorm:"<-:create;column:kind;type:cart_item_kind;not null"`
	ReferenceID *uuid.UUID         `gorm:"<-:create;column:reference_id;type:uuid"`
	Label       string             `gorm:"<-:create;column:label;not null"`
	Quantity    int                `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal    `gorm:"<-:create;column:unit_price;type:numeric(12,2);not null"`
	Snapshot    types.ItemSnapshot `gorm:"<-:create;column:snapshot;type:jsonb;serializer:json;not null"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// LineTotal is the frozen unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
