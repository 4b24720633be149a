package promotions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// OrderContext is what a promotion is checked against.
type OrderContext struct {
	Subtotal    decimal.Decimal
	CustomerID  *uuid.UUID
	StoreID     uuid.UUID
	CategoryIDs []uuid.UUID
	ProductIDs  []uuid.UUID
}

// ComputeDiscount applies the promotion's discount law to subtotal. The result
// never exceeds subtotal and is rounded to cents.
func ComputeDiscount(kind enums.DiscountType, value, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.Sign() <= 0 || value.Sign() <= 0 {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch kind {
	case enums.DiscountTypePercentage:
		discount = subtotal.Mul(value).Div(hundred)
	case enums.DiscountTypeFixed:
		discount = value
	default:
		return decimal.Zero
	}
	return decimal.Min(discount, subtotal).Round(2)
}

// checkStatic runs the checks that need only the promotion row, in order:
// active, window, minimum order, global cap. Per-customer and scope checks
// follow in the caller.
func checkStatic(promo *models.Promotion, oc OrderContext, now time.Time) error {
	if !promo.IsActive {
		return invalidCode()
	}
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return invalidCode()
	}
	if promo.ValidTo != nil && now.After(*promo.ValidTo) {
		return invalidCode()
	}
	if oc.Subtotal.LessThan(promo.MinimumOrderAmount) {
		return pkgerrors.New(pkgerrors.CodeMinimumOrderNotMet, "order subtotal is below the promotion minimum").
			WithDetails(map[string]any{
				"minimum_order_amount": promo.MinimumOrderAmount.StringFixed(2),
				"subtotal":             oc.Subtotal.StringFixed(2),
			})
	}
	if promo.UsageLimit != nil && promo.UsedCount >= *promo.UsageLimit {
		return invalidCode()
	}
	return nil
}

// checkScope requires every configured scope dimension to intersect the order.
func checkScope(promo *models.Promotion, oc OrderContext) error {
	if len(promo.StoreIDs) > 0 && !promo.StoreIDs.Intersects([]uuid.UUID{oc.StoreID}) {
		return invalidCode()
	}
	if len(promo.CategoryIDs) > 0 && !promo.CategoryIDs.Intersects(oc.CategoryIDs) {
		return invalidCode()
	}
	if len(promo.ProductIDs) > 0 && !promo.ProductIDs.Intersects(oc.ProductIDs) {
		return invalidCode()
	}
	return nil
}

// Every rejection short of the minimum-order check looks the same to callers.
func invalidCode() error {
	return pkgerrors.New(pkgerrors.CodeInvalidPromoCode, "promo code is not valid")
}
