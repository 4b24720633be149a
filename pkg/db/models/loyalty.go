package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
)

// LoyaltyWallet caches the signed sum of its transactions in Balance.
type LoyaltyWallet struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;uniqueIndex"`
	Balance    int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *LoyaltyWallet) BeforeCreate(*gorm.DB) error {
	assignID(&w.ID)
	return nil
}

// LoyaltyTransaction is an append-only ledger row.
type LoyaltyTransaction struct {
	ID            uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	WalletID      uuid.UUID                    `gorm:"column:wallet_id;type:uuid;not null;index"`
	Points        int64                        `gorm:"column:points;not null"`
	Type          enums.LoyaltyTransactionType `gorm:"column:type;type:loyalty_transaction_type;not null"`
	Reason        string                       `gorm:"column:reason;not null"`
	ReferenceType *enums.LoyaltyReferenceType  `gorm:"column:reference_type;type:loyalty_reference_type"`
	ReferenceID   *uuid.UUID                   `gorm:"column:reference_id;type:uuid"`
	CreatedBy     *uuid.UUID                   `gorm:"column:created_by;type:uuid"`
	CreatedAt     time.Time                    `gorm:"column:created_at;autoCreateTime"`
}

func (t *LoyaltyTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
