package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

type cartResponse struct {
	ID          uuid.UUID          `json:"id"`
	StoreID     uuid.UUID          `json:"store_id"`
	CustomerID  *uuid.UUID         `json:"customer_id,omitempty"`
	Status      string             `json:"status"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	Discount    decimal.Decimal    `json:"discount"`
	Total       decimal.Decimal    `json:"total"`
	PromotionID *uuid.UUID         `json:"promotion_id,omitempty"`
	AbandonedAt *time.Time         `json:"abandoned_at,omitempty"`
	Items       []cartItemResponse `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type cartItemResponse struct {
	ID          uuid.UUID          `json:"id"`
	Kind        string             `json:"item_type"`
	ReferenceID *uuid.UUID         `json:"item_id,omitempty"`
	Label       string             `json:"label"`
	Quantity    int                `json:"quantity"`
	UnitPrice   decimal.Decimal    `json:"unit_price"`
	LineTotal   decimal.Decimal    `json:"line_total"`
	Snapshot    types.ItemSnapshot `json:"snapshot"`
	CreatedAt   time.Time          `json:"created_at"`
}

func newCartResponse(cart *models.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemResponse{
			ID:          item.ID,
			Kind:        string(item.Kind),
			ReferenceID: item.ReferenceID,
			Label:       item.Label,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal(),
			Snapshot:    item.Snapshot,
			CreatedAt:   item.CreatedAt,
		})
	}
	return cartResponse{
		ID:          cart.ID,
		StoreID:     cart.StoreID,
		CustomerID:  cart.CustomerID,
		Status:      string(cart.Status),
		Subtotal:    cart.Subtotal,
		Discount:    cart.Discount,
		Total:       cart.Total,
		PromotionID: cart.PromotionID,
		AbandonedAt: cart.AbandonedAt,
		Items:       items,
		CreatedAt:   cart.CreatedAt,
		UpdatedAt:   cart.UpdatedAt,
	}
}

type orderResponse struct {
	ID           uuid.UUID         `json:"id"`
	CartID       uuid.UUID         `json:"cart_id"`
	StoreID      uuid.UUID         `json:"store_id"`
	CustomerID   *uuid.UUID        `json:"customer_id,omitempty"`
	PromotionID  *uuid.UUID        `json:"promotion_id,omitempty"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	Discount     decimal.Decimal   `json:"discount"`
	TaxRate      decimal.Decimal   `json:"tax_rate"`
	Tax          decimal.Decimal   `json:"tax"`
	Total        decimal.Decimal   `json:"total"`
	PointsEarned int64             `json:"points_earned"`
	Lines        []types.OrderLine `json:"lines"`
	CreatedAt    time.Time         `json:"created_at"`
}

func newOrderResponse(o models.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		CartID:       o.CartID,
		StoreID:      o.StoreID,
		CustomerID:   o.CustomerID,
		PromotionID:  o.PromotionID,
		Subtotal:     o.Subtotal,
		Discount:     o.Discount,
		TaxRate:      o.TaxRate,
		Tax:          o.Tax,
		Total:        o.Total,
		PointsEarned: o.PointsEarned,
		Lines:        o.Lines,
		CreatedAt:    o.CreatedAt,
	}
}

type promotionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Code               string          `json:"code"`
	Description        string          `json:"description,omitempty"`
	DiscountType       string          `json:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	MinimumOrderAmount decimal.Decimal `json:"minimum_order_amount"`
	ValidFrom          *time.Time      `json:"valid_from,omitempty"`
	ValidTo            *time.Time      `json:"valid_to,omitempty"`
	UsageLimit         *int            `json:"usage_limit,omitempty"`
	UsagePerUserLimit  *int            `json:"usage_per_user_limit,omitempty"`
	UsedCount          int             `json:"used_count"`
	IsActive           bool            `json:"is_active"`
	StoreIDs           []uuid.UUID     `json:"store_ids"`
	CategoryIDs        []uuid.UUID     `json:"category_ids"`
	ProductIDs         []uuid.UUID     `json:"product_ids"`
	CreatedAt          time.Time       `json:"created_at"`
}

func newPromotionResponse(p models.Promotion) promotionResponse {
	return promotionResponse{
		ID:                 p.ID,
		Code:               p.Code,
		Description:        p.Description,
		DiscountType:       string(p.DiscountType),
		DiscountValue:      p.DiscountValue,
		MinimumOrderAmount: p.MinimumOrderAmount,
		ValidFrom:          p.ValidFrom,
		ValidTo:            p.ValidTo,
		UsageLimit:         p.UsageLimit,
		UsagePerUserLimit:  p.UsagePerUserLimit,
		UsedCount:          p.UsedCount,
		IsActive:           p.IsActive,
		StoreIDs:           nonNilIDs(p.StoreIDs),
		CategoryIDs:        nonNilIDs(p.CategoryIDs),
		ProductIDs:         nonNilIDs(p.ProductIDs),
		CreatedAt:          p.CreatedAt,
	}
}

type promotionUsageResponse struct {
	ID             uuid.UUID       `json:"id"`
	PromotionID    uuid.UUID       `json:"promotion_id"`
	CustomerID     *uuid.UUID      `json:"customer_id,omitempty"`
	CartID         *uuid.UUID      `json:"cart_id,omitempty"`
	OrderID        *uuid.UUID      `json:"order_id,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

func newPromotionUsageResponse(u models.PromotionUsage) promotionUsageResponse {
	return promotionUsageResponse{
		ID:             u.ID,
		PromotionID:    u.PromotionID,
		CustomerID:     u.CustomerID,
		CartID:         u.CartID,
		OrderID:        u.OrderID,
		DiscountAmount: u.DiscountAmount,
		CreatedAt:      u.CreatedAt,
	}
}

type qrCodeResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Code               string     `json:"code"`
	Name               string     `json:"name"`
	Points             int64      `json:"points"`
	IsActive           bool       `json:"is_active"`
	AvailableFrom      *time.Time `json:"available_from,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	MaxTotalUses       *int       `json:"max_total_uses,omitempty"`
	MaxUsesPerCustomer *int       `json:"max_uses_per_customer,omitempty"`
	TotalUses          int        `json:"total_uses"`
	CreatedAt          time.Time  `json:"created_at"`
}

func newQRCodeResponse(c models.QRCode) qrCodeResponse {
	return qrCodeResponse{
		ID:                 c.ID,
		Code:               c.Code,
		Name:               c.Name,
		Points:             c.Points,
		IsActive:           c.IsActive,
		AvailableFrom:      c.AvailableFrom,
		ExpiresAt:          c.ExpiresAt,
		MaxTotalUses:       c.MaxTotalUses,
		MaxUsesPerCustomer: c.MaxUsesPerCustomer,
		TotalUses:          c.TotalUses,
		CreatedAt:          c.CreatedAt,
	}
}

type qrScanResponse struct {
	ID            uuid.UUID `json:"id"`
	QRCodeID      uuid.UUID `json:"qr_code_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	PointsAwarded int64     `json:"points_awarded"`
	TransactionID uuid.UUID `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func newQRScanResponse(s models.QRCodeScan) qrScanResponse {
	return qrScanResponse{
		ID:            s.ID,
		QRCodeID:      s.QRCodeID,
		CustomerID:    s.CustomerID,
		PointsAwarded: s.PointsAwarded,
		TransactionID: s.TransactionID,
		CreatedAt:     s.CreatedAt,
	}
}

type receiptResponse struct {
	ID              uuid.UUID        `json:"id"`
	CustomerID      uuid.UUID        `json:"customer_id"`
	StoreID         *uuid.UUID       `json:"store_id,omitempty"`
	ImageURL        string           `json:"image_url"`
	ReceiptNumber   *string          `json:"receipt_number,omitempty"`
	PurchaseAmount  *decimal.Decimal `json:"purchase_amount,omitempty"`
	Status          string           `json:"status"`
	PointsAwarded   *int64           `json:"points_awarded,omitempty"`
	ReviewedBy      *uuid.UUID       `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
	TransactionID   *uuid.UUID       `json:"transaction_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

func newReceiptResponse(r models.ReceiptSubmission) receiptResponse {
	return receiptResponse{
		ID:              r.ID,
		CustomerID:      r.CustomerID,
		StoreID:         r.StoreID,
		ImageURL:        r.ImageURL,
		ReceiptNumber:   r.ReceiptNumber,
		PurchaseAmount:  r.PurchaseAmount,
		Status:          string(r.Status),
		PointsAwarded:   r.PointsAwarded,
		ReviewedBy:      r.ReviewedBy,
		ReviewedAt:      r.ReviewedAt,
		RejectionReason: r.RejectionReason,
		TransactionID:   r.TransactionID,
		CreatedAt:       r.CreatedAt,
	}
}

type walletResponse struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Balance    int64     `json:"balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newWalletResponse(w models.LoyaltyWallet) walletResponse {
	return walletResponse{ID: w.ID, CustomerID: w.CustomerID, Balance: w.Balance, UpdatedAt: w.UpdatedAt}
}

type transactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	WalletID      uuid.UUID  `json:"wallet_id"`
	Points        int64      `json:"points"`
	Type          string     `json:"type"`
	Reason        string     `json:"reason"`
	ReferenceType *string    `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newTransactionResponse(t models.LoyaltyTransaction) transactionResponse {
	resp := transactionResponse{
		ID:          t.ID,
		WalletID:    t.WalletID,
		Points:      t.Points,
		Type:        string(t.Type),
		Reason:      t.Reason,
		ReferenceID: t.ReferenceID,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	}
	if t.ReferenceType != nil {
		ref := string(*t.ReferenceType)
		resp.ReferenceType = &ref
	}
	return resp
}

type postingResponse struct {
	Wallet      walletResponse      `json:"wallet"`
	Transaction transactionResponse `json:"transaction"`
}

func newPostingResponse(wallet models.LoyaltyWallet, tx models.LoyaltyTransaction) postingResponse {
	return postingResponse{Wallet: newWalletResponse(wallet), Transaction: newTransactionResponse(tx)}
}

type pageResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func mapPage[S, T any](items []S, next string, fn func(S) T) pageResponse[T] {
	out := make([]T, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return pageResponse[T]{Items: out, NextCursor: next}
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
