package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once a cart is frozen into an order.
type OrderCreatedEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	CartID       uuid.UUID       `json:"cart_id"`
	StoreID      uuid.UUID       `json:"store_id"`
	CustomerID   *uuid.UUID      `json:"customer_id,omitempty"`
	PromotionID  *uuid.UUID      `json:"promotion_id,omitempty"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	PointsEarned int64           `json:"points_earned"`
}

// CartAbandonedEvent is emitted when a cart is abandoned explicitly or by the idle sweeper.
type CartAbandonedEvent struct {
	CartID     uuid.UUID  `json:"cart_id"`
	StoreID    uuid.UUID  `json:"store_id"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	Reason     string     `json:"reason"`
}

// PromotionUsedEvent is emitted when a promotion usage is committed.
type PromotionUsedEvent struct {
	PromotionID    uuid.UUID       `json:"promotion_id"`
	Code           string          `json:"code"`
	CustomerID     *uuid.UUID      `json:"customer_id,omitempty"`
	OrderID        *uuid.UUID      `json:"order_id,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	UsedCount      int             `json:"used_count"`
}

// LoyaltyPointsEvent mirrors one ledger row.
type LoyaltyPointsEvent struct {
	WalletID      uuid.UUID                    `json:"wallet_id"`
	CustomerID    uuid.UUID                    `json:"customer_id"`
	TransactionID uuid.UUID                    `json:"transaction_id"`
	Points        int64                        `json:"points"`
	Balance       int64                        `json:"balance"`
	Type          enums.LoyaltyTransactionType `json:"type"`
	ReferenceType *enums.LoyaltyReferenceType  `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID                   `json:"reference_id,omitempty"`
}

// QRCodeRedeemedEvent is emitted for each successful scan.
type QRCodeRedeemedEvent struct {
	QRCodeID   uuid.UUID `json:"qr_code_id"`
	ScanID     uuid.UUID `json:"scan_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Points     int64     `json:"points"`
	TotalUses  int       `json:"total_uses"`
}

// ReceiptReviewedEvent covers both approval and rejection.
type ReceiptReviewedEvent struct {
	ReceiptID  uuid.UUID           `json:"receipt_id"`
	CustomerID uuid.UUID           `json:"customer_id"`
	OperatorID uuid.UUID           `json:"operator_id"`
	Status     enums.ReceiptStatus `json:"status"`
	Points     int64               `json:"points,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}
