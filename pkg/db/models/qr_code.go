package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QRCode is a redeemable code worth a fixed number of points.
type QRCode struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Code               string     `gorm:"column:code;not null;uniqueIndex"`
	Name               string     `gorm:"column:name;not null"`
	Points             int64      `gorm:"column:points;not null"`
	IsActive           bool       `gorm:"column:is_active;not null"`
	AvailableFrom      *time.Time `gorm:"column:available_from"`
	ExpiresAt          *time.Time `gorm:"column:expires_at"`
	MaxTotalUses       *int       `gorm:"column:max_total_uses"`
	MaxUsesPerCustomer *int       `gorm:"column:max_uses_per_customer"`
	TotalUses          int        `gorm:"column:total_uses;not null;default:0"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (q *QRCode) BeforeCreate(*gorm.DB) error {
	assignID(&q.ID)
	return nil
}

// QRCodeScan is the append-only record of one successful redemption.
type QRCodeScan struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	QRCodeID      uuid.UUID `gorm:"column:qr_code_id;type:uuid;not null;index:idx_qr_code_scans_code_customer,priority:1"`
	CustomerID    uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index:idx_qr_code_scans_code_customer,priority:2"`
	PointsAwarded int64     `gorm:"column:points_awarded;not null"`
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *QRCodeScan) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
