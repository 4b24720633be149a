package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateCart          OutboxAggregateType = "cart"
	AggregateLoyaltyWallet OutboxAggregateType = "loyalty_wallet"
	AggregateQRCode        OutboxAggregateType = "qr_code"
	AggregateReceipt       OutboxAggregateType = "receipt"
	AggregatePromotion     OutboxAggregateType = "promotion"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateCart,
	AggregateLoyaltyWallet,
	AggregateQRCode,
	AggregateReceipt,
	AggregatePromotion,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventCartAbandoned         OutboxEventType = "cart_abandoned"
	EventPromotionUsed         OutboxEventType = "promotion_used"
	EventLoyaltyPointsCredited OutboxEventType = "loyalty_points_credited"
	EventLoyaltyPointsDebited  OutboxEventType = "loyalty_points_debited"
	EventQRCodeRedeemed        OutboxEventType = "qr_code_redeemed"
	EventReceiptApproved       OutboxEventType = "receipt_approved"
	EventReceiptRejected       OutboxEventType = "receipt_rejected"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventCartAbandoned,
	EventPromotionUsed,
	EventLoyaltyPointsCredited,
	EventLoyaltyPointsDebited,
	EventQRCodeRedeemed,
	EventReceiptApproved,
	EventReceiptRejected,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:          AggregateOrder,
	EventCartAbandoned:         AggregateCart,
	EventPromotionUsed:         AggregatePromotion,
	EventLoyaltyPointsCredited: AggregateLoyaltyWallet,
	EventLoyaltyPointsDebited:  AggregateLoyaltyWallet,
	EventQRCodeRedeemed:        AggregateQRCode,
	EventReceiptApproved:       AggregateReceipt,
	EventReceiptRejected:       AggregateReceipt,
}

// Aggregate is the aggregate type every event of this type is keyed on.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}
