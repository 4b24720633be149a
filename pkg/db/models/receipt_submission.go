package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
)

// ReceiptSubmission awaits a single operator review.
type ReceiptSubmission struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID      uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	StoreID         *uuid.UUID          `gorm:"column:store_id;type:uuid"`
	ImageURL        string              `gorm:"column:image_url;not null"`
	ReceiptNumber   *string             `gorm:"column:receipt_number"`
	PurchaseAmount  *decimal.Decimal    `gorm:"column:purchase_amount;type:numeric(12,2)"`
	Status          enums.ReceiptStatus `gorm:"column:status;type:receipt_status;not null;default:'pending'"`
	PointsAwarded   *int64              `gorm:"column:points_awarded"`
	ReviewedBy      *uuid.UUID          `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt      *time.Time          `gorm:"column:reviewed_at"`
	RejectionReason *string             `gorm:"column:rejection_reason"`
	TransactionID   *uuid.UUID          `gorm:"column:transaction_id;type:uuid"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReceiptSubmission) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
