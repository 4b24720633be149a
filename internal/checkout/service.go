package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/internal/cart"
	"github.com/angelmondragon/blendpoint-backend/internal/loyalty"
	"github.com/angelmondragon/blendpoint-backend/internal/promotions"
	"github.com/angelmondragon/blendpoint-backend/pkg/db"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Settings are the checkout rates loaded from config.
type Settings struct {
	DefaultTaxRate decimal.Decimal
	// PointsPerUnit is how many loyalty points one currency unit of the
	// discounted total earns. Zero disables earning.
	PointsPerUnit decimal.Decimal
}

// Input overrides the default tax rate for one checkout.
type Input struct {
	TaxRate *decimal.Decimal
}

// Result is the placed order and, when points were earned, the wallet posting.
type Result struct {
	Order   models.Order     `json:"order"`
	Posting *loyalty.Posting `json:"loyalty,omitempty"`
}

// Service freezes a cart into an order.
type Service interface {
	Checkout(ctx context.Context, cartID uuid.UUID, owner cart.Owner, input Input) (*Result, error)
	GetOrder(ctx context.Context, orderID, customerID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
}

type service struct {
	orders     *Repository
	carts      *cart.Repository
	tx         txRunner
	cartSvc    cart.Service
	promotions promotions.Service
	wallet     loyalty.Service
	events     outbox.Emitter
	settings   Settings
	logg       *logger.Logger
}

func NewService(
	orders *Repository,
	carts *cart.Repository,
	tx txRunner,
	cartSvc cart.Service,
	promos promotions.Service,
	wallet loyalty.Service,
	events outbox.Emitter,
	settings Settings,
	logg *logger.Logger,
) (Service, error) {
	switch {
	case orders == nil:
		return nil, fmt.Errorf("order repository required")
	case carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case cartSvc == nil:
		return nil, fmt.Errorf("cart service required")
	case promos == nil:
		return nil, fmt.Errorf("promotion service required")
	case wallet == nil:
		return nil, fmt.Errorf("loyalty service required")
	case events == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	if settings.DefaultTaxRate.Sign() < 0 || settings.PointsPerUnit.Sign() < 0 {
		return nil, fmt.Errorf("checkout rates must not be negative")
	}
	return &service{
		orders:     orders,
		carts:      carts,
		tx:         tx,
		cartSvc:    cartSvc,
		promotions: promos,
		wallet:     wallet,
		events:     events,
		settings:   settings,
		logg:       logg,
	}, nil
}

// Checkout runs in one transaction: lock and recalculate the cart, commit
// the promotion usage, write the order, convert the cart, earn points and
// queue order_created. Any failure rolls all of it back.
func (s *service) Checkout(ctx context.Context, cartID uuid.UUID, owner cart.Owner, input Input) (*Result, error) {
	rate := s.settings.DefaultTaxRate
	if input.TaxRate != nil {
		rate = *input.TaxRate
	}
	if rate.Sign() < 0 || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be between 0 and 1").
			WithDetails(map[string]any{"field": "tax_rate", "value": rate.String()})
	}
	ctx = s.logg.WithCartID(ctx, cartID.String())

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.checkoutTx(ctx, tx, cartID, owner, rate)
		return err
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed == nil || !pkgerrors.IsClientCode(typed.Code()) {
			s.logg.Error(ctx, "checkout.failed", err)
		}
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, result.Order.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"total":         result.Order.Total.StringFixed(2),
		"points_earned": result.Order.PointsEarned,
	}), "checkout.order_created")
	return result, nil
}

func (s *service) checkoutTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID, owner cart.Owner, rate decimal.Decimal) (*Result, error) {
	carts := s.carts.WithTx(tx)
	locked, err := carts.LockActive(ctx, cartID, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
	}
	if err := s.cartSvc.RecalculateTx(ctx, tx, locked); err != nil {
		return nil, err
	}
	if len(locked.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCartEmpty, "cart has no items")
	}

	orderID := uuid.New()
	var promotionID *uuid.UUID
	if locked.PromotionID != nil && locked.Discount.Sign() > 0 {
		usage, err := s.promotions.CommitUsage(ctx, tx, promotions.CommitInput{
			PromotionID: *locked.PromotionID,
			CartID:      &locked.ID,
			OrderID:     &orderID,
			Context:     cart.OrderContext(locked, locked.Items),
		})
		if err != nil {
			return nil, err
		}
		if !usage.DiscountAmount.Equal(locked.Discount) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "promotion discount changed during checkout")
		}
		promotionID = locked.PromotionID
	}

	tax := locked.Total.Mul(rate).Round(2)
	order := models.Order{
		ID:           orderID,
		CartID:       locked.ID,
		StoreID:      locked.StoreID,
		CustomerID:   locked.CustomerID,
		PromotionID:  promotionID,
		Subtotal:     locked.Subtotal,
		Discount:     locked.Discount,
		TaxRate:      rate,
		Tax:          tax,
		Total:        locked.Total.Add(tax),
		PointsEarned: s.pointsFor(locked),
		Lines:        freezeLines(locked.Items),
	}
	if err := s.orders.WithTx(tx).Create(ctx, &order); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	if err := carts.MarkTerminal(ctx, locked.ID, enums.CartStatusConverted, order.CreatedAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
	}

	result := &Result{}
	if order.PointsEarned > 0 {
		ref := enums.LoyaltyReferenceOrder
		posting, err := s.wallet.CreditTx(ctx, tx, *order.CustomerID, loyalty.Entry{
			Points:        order.PointsEarned,
			Type:          enums.LoyaltyTransactionEarned,
			Reason:        "Order purchase",
			ReferenceType: &ref,
			ReferenceID:   &order.ID,
		})
		if err != nil {
			return nil, err
		}
		result.Posting = posting
	}

	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderCreatedEvent{
			OrderID:      order.ID,
			CartID:       order.CartID,
			StoreID:      order.StoreID,
			CustomerID:   order.CustomerID,
			PromotionID:  order.PromotionID,
			Subtotal:     order.Subtotal,
			Discount:     order.Discount,
			Tax:          order.Tax,
			Total:        order.Total,
			PointsEarned: order.PointsEarned,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue order event")
	}

	result.Order = order
	return result, nil
}

// pointsFor floors the discounted pre-tax total times the earn rate. Guests
// earn nothing.
func (s *service) pointsFor(c *models.Cart) int64 {
	if c.CustomerID == nil || s.settings.PointsPerUnit.Sign() <= 0 {
		return 0
	}
	return c.Total.Mul(s.settings.PointsPerUnit).Floor().IntPart()
}

func freezeLines(items []models.CartItem) []types.OrderLine {
	lines := make([]types.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, types.OrderLine{
			Kind:        item.Kind,
			ReferenceID: item.ReferenceID,
			Label:       item.Label,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal().Round(2),
			Snapshot:    item.Snapshot,
		})
	}
	return lines
}

func (s *service) GetOrder(ctx context.Context, orderID, customerID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindForCustomer(ctx, orderID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := s.orders.ListForCustomer(ctx, customerID, params)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return page, nil
}
