package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/internal/catalog"
	"github.com/angelmondragon/blendpoint-backend/internal/pricing"
	"github.com/angelmondragon/blendpoint-backend/internal/promotions"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/metrics"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox/payloads"
)

const (
	opInit           = "init"
	opAddItem        = "add_item"
	opUpdateQuantity = "update_quantity"
	opRemoveItem     = "remove_item"
	opRecalculate    = "recalculate"
	opApplyPromotion = "apply_promotion"
	opRemovePromo    = "remove_promotion"
	opAbandon        = "abandon"

	abandonReasonExplicit = "explicit"
	abandonReasonIdle     = "idle"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns carts and the only code path that writes their totals.
type Service interface {
	Init(ctx context.Context, storeID uuid.UUID, owner Owner) (*models.Cart, error)
	GetActive(ctx context.Context, storeID uuid.UUID, owner Owner) (*models.Cart, error)
	Get(ctx context.Context, cartID uuid.UUID, owner Owner) (*models.Cart, error)

	AddItem(ctx context.Context, cartID uuid.UUID, owner Owner, spec ItemSpec) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, owner Owner, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID, owner Owner) (*models.Cart, error)
	Recalculate(ctx context.Context, cartID uuid.UUID, owner Owner) (*models.Cart, error)
	RecalculateTx(ctx context.Context, tx *gorm.DB, cart *models.Cart) error

	ApplyPromotion(ctx context.Context, cartID uuid.UUID, owner Owner, code string) (*models.Cart, error)
	RemovePromotion(ctx context.Context, cartID uuid.UUID, owner Owner) (*models.Cart, error)

	Abandon(ctx context.Context, cartID uuid.UUID, owner Owner) (*models.Cart, error)
	SweepStale(ctx context.Context, before time.Time, limit int) (int, error)
}

type service struct {
	repo       *Repository
	tx         txRunner
	catalog    catalog.Reader
	calc       pricing.Calculator
	promotions promotions.Service
	events     outbox.Emitter
	metrics    *metrics.Engine
	logg       *logger.Logger
	now        func() time.Time
}

// Deps groups the collaborators the cart service needs.
type Deps struct {
	Repo       *Repository
	Tx         txRunner
	Catalog    catalog.Reader
	Calculator pricing.Calculator
	Promotions promotions.Service
	Events     outbox.Emitter
	Metrics    *metrics.Engine
	Logger     *logger.Logger
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if deps.Calculator == nil {
		return nil, fmt.Errorf("price calculator required")
	}
	if deps.Promotions == nil {
		return nil, fmt.Errorf("promotion service required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:       deps.Repo,
		tx:         deps.Tx,
		catalog:    deps.Catalog,
		calc:       deps.Calculator,
		promotions: deps.Promotions,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logg:       deps.Logger,
		now:        time.Now,
	}, nil
}

// Init creates an empty active cart. Callers look up GetActive first; two
// active carts per owner and store are not prevented here.
func (s *service) Init(ctx context.Context, storeID uuid.UUID, owner Owner) (*models.Cart, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required").WithDetails(map[string]any{"field": "store_id"})
	}
	if err := owner.validate(); err != nil {
		return nil, err
	}
	cart := &models.Cart{
		StoreID:            storeID,
		CustomerID:         owner.CustomerID,
		SessionTokenDigest: owner.digest(),
		Subtotal:           decimal.Zero,
		Discount:           decimal.Zero,
		Total:              decimal.Zero,
	}
	if err := s.repo.Create(ctx, cart); err != nil {
		s.metrics.CartMutation(opInit, metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	cart.Items = []models.CartItem{}
	s.metrics.CartMutation(opInit, metrics.OutcomeSuccess)
	s.logg.Info(s.cartCtx(ctx, cart.ID), "cart.created")
	return cart, nil
}

func (s *service) GetActive(ctx context.Context, storeID uuid.UUID, owner Owner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindActiveForOwner(ctx, storeID, owner)
	if err != nil {
		return nil, cartLookupError(err)
	}
	return cart, nil
}

// Get returns an owned cart in any status.
func (s *service) Get(ctx context.Context, cartID uuid.UUID, owner Owner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindForOwner(ctx, cartID, owner)
	if err != nil {
		return nil, cartLookupError(err)
	}
	return cart, nil
}

// AddItem prices the item once, outside the transaction, then inserts the
// frozen line and recalculates under the cart lock.
func (s *service) AddItem(ctx context.Context, cartID uuid.UUID, owner Owner, spec ItemSpec) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	if err := spec.validate(); err != nil {
		s.metrics.CartMutation(opAddItem, metrics.OutcomeRejected)
		return nil, err
	}
	priced, err := s.resolve(ctx, spec)
	if err != nil {
		s.observe(opAddItem, err)
		return nil, err
	}

	var itemID uuid.UUID
	cart, err := s.mutate(ctx, opAddItem, cartID, owner, func(tx *gorm.DB, cart *models.Cart) error {
		item := priced.item(cart.ID, spec.Quantity)
		if err := s.repo.WithTx(tx).InsertItem(ctx, &item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert cart item")
		}
		itemID = item.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.cartCtx(ctx, cartID), map[string]any{
		"item_id":    itemID.String(),
		"kind":       string(spec.Kind),
		"unit_price": priced.price.Total.StringFixed(2),
		"quantity":   spec.Quantity,
	}), "cart.item_added")
	return cart, nil
}

func (s *service) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, owner Owner, quantity int) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	if err := validateQuantity(quantity); err != nil {
		s.metrics.CartMutation(opUpdateQuantity, metrics.OutcomeRejected)
		return nil, err
	}
	return s.mutate(ctx, opUpdateQuantity, cartID, owner, func(tx *gorm.DB, cart *models.Cart) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindItem(ctx, cart.ID, itemID); err != nil {
			return itemLookupError(err)
		}
		if err := repo.UpdateItemQuantity(ctx, itemID, quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID, owner Owner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, opRemoveItem, cartID, owner, func(tx *gorm.DB, cart *models.Cart) error {
		removed, err := s.repo.WithTx(tx).DeleteItem(ctx, cart.ID, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeCartItemNotFound, "cart item not found")
		}
		return nil
	})
}

func (s *service) Recalculate(ctx context.Context, cartID uuid.UUID, owner Owner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, opRecalculate, cartID, owner, nil)
}

// ApplyPromotion checks the code against the current cart and stores the
// reference. The discount itself is written by the recalculation that follows.
func (s *service) ApplyPromotion(ctx context.Context, cartID uuid.UUID, owner Owner, code string) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	var promoID uuid.UUID
	cart, err := s.mutate(ctx, opApplyPromotion, cartID, owner, func(tx *gorm.DB, cart *models.Cart) error {
		items, err := s.repo.WithTx(tx).ListItems(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
		}
		quote, err := s.promotions.ValidateAndPriceTx(ctx, tx, code, OrderContext(cart, items))
		if err != nil {
			return err
		}
		promoID = quote.Promotion.ID
		if err := s.repo.WithTx(tx).SetPromotion(ctx, cart.ID, &promoID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach promotion")
		}
		cart.PromotionID = &promoID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.cartCtx(ctx, cartID), "promotion_id", promoID.String()), "cart.promotion_applied")
	return cart, nil
}

func (s *service) RemovePromotion(ctx context.Context, cartID uuid.UUID, owner Owner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, opRemovePromo, cartID, owner, func(tx *gorm.DB, cart *models.Cart) error {
		if err := s.repo.WithTx(tx).SetPromotion(ctx, cart.ID, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach promotion")
		}
		cart.PromotionID = nil
		return nil
	})
}

// Abandon ends the cart. Items stay for audit; totals keep their last value.
func (s *service) Abandon(ctx context.Context, cartID uuid.UUID, owner Owner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.repo.WithTx(tx).LockActive(ctx, cartID, owner)
		if err != nil {
			return cartLookupError(err)
		}
		return s.abandonTx(ctx, tx, cart, abandonReasonExplicit)
	})
	if err != nil {
		s.observe(opAbandon, err)
		return nil, err
	}
	s.metrics.CartMutation(opAbandon, metrics.OutcomeSuccess)
	s.logg.Info(s.cartCtx(ctx, cartID), "cart.abandoned")
	return s.Get(ctx, cartID, owner)
}

// SweepStale abandons active carts untouched since before. Each cart is
// handled in its own transaction so one failure does not block the batch.
func (s *service) SweepStale(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	ids, err := s.repo.ListStaleActiveIDs(ctx, before, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale carts")
	}
	swept := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			cart, err := s.repo.WithTx(tx).LockActiveByID(ctx, id)
			if err != nil {
				return err
			}
			if !cart.UpdatedAt.Before(before) {
				return gorm.ErrRecordNotFound
			}
			return s.abandonTx(ctx, tx, cart, abandonReasonIdle)
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			s.logg.Error(s.cartCtx(ctx, id), "cart.sweep.failed", err)
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *service) abandonTx(ctx context.Context, tx *gorm.DB, cart *models.Cart, reason string) error {
	if err := s.repo.WithTx(tx).MarkTerminal(ctx, cart.ID, enums.CartStatusAbandoned, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "abandon cart")
	}
	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCartAbandoned,
		AggregateType: enums.AggregateCart,
		AggregateID:   cart.ID,
		Data: payloads.CartAbandonedEvent{
			CartID:     cart.ID,
			StoreID:    cart.StoreID,
			CustomerID: cart.CustomerID,
			Reason:     reason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue cart event")
	}
	return nil
}

// mutate locks the active cart, runs fn and recalculates, all in one
// transaction. A nil fn only recalculates.
func (s *service) mutate(ctx context.Context, op string, cartID uuid.UUID, owner Owner, fn func(tx *gorm.DB, cart *models.Cart) error) (*models.Cart, error) {
	var out *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.repo.WithTx(tx).LockActive(ctx, cartID, owner)
		if err != nil {
			return cartLookupError(err)
		}
		if fn != nil {
			if err := fn(tx, cart); err != nil {
				return err
			}
		}
		if err := s.RecalculateTx(ctx, tx, cart); err != nil {
			return err
		}
		out = cart
		return nil
	})
	if err != nil {
		s.observe(op, err)
		return nil, err
	}
	s.metrics.CartMutation(op, metrics.OutcomeSuccess)
	return out, nil
}

// RecalculateTx derives subtotal, discount and total from the stored item
// prices and writes them. It is the only writer of cart aggregates. An
// attached promotion that no longer qualifies stays attached and grants 0.
func (s *service) RecalculateTx(ctx context.Context, tx *gorm.DB, cart *models.Cart) error {
	if tx == nil || cart == nil {
		return fmt.Errorf("transaction and cart required")
	}
	repo := s.repo.WithTx(tx)
	items, err := repo.ListItems(ctx, cart.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}

	oc := OrderContext(cart, items)
	discount := decimal.Zero
	if cart.PromotionID != nil {
		quote, err := s.promotions.EvaluateTx(ctx, tx, *cart.PromotionID, oc)
		switch {
		case err == nil:
			discount = quote.Discount
		case isClientError(err):
			s.logg.Debug(s.logg.WithField(s.cartCtx(ctx, cart.ID), "reason", pkgerrors.As(err).Code()), "cart.promotion_ineligible")
		default:
			return err
		}
	}
	total := oc.Subtotal.Sub(discount)
	if total.Sign() < 0 {
		total = decimal.Zero
	}

	if err := repo.WriteTotals(ctx, cart.ID, oc.Subtotal, discount, total); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write cart totals")
	}
	cart.Subtotal = oc.Subtotal
	cart.Discount = discount
	cart.Total = total
	cart.Items = items
	return nil
}

// OrderContext sums the frozen line prices and unions the ids the lines
// were priced from.
func OrderContext(cart *models.Cart, items []models.CartItem) promotions.OrderContext {
	subtotal := decimal.Zero
	products := make(map[uuid.UUID]struct{})
	categories := make(map[uuid.UUID]struct{})
	oc := promotions.OrderContext{CustomerID: cart.CustomerID, StoreID: cart.StoreID}
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
		for _, id := range item.Snapshot.ProductIDs {
			if _, ok := products[id]; !ok {
				products[id] = struct{}{}
				oc.ProductIDs = append(oc.ProductIDs, id)
			}
		}
		for _, id := range item.Snapshot.CategoryIDs {
			if _, ok := categories[id]; !ok {
				categories[id] = struct{}{}
				oc.CategoryIDs = append(oc.CategoryIDs, id)
			}
		}
	}
	oc.Subtotal = subtotal.Round(2)
	return oc
}

func (s *service) observe(op string, err error) {
	if isClientError(err) {
		s.metrics.CartMutation(op, metrics.OutcomeRejected)
		return
	}
	s.metrics.CartMutation(op, metrics.OutcomeError)
}

func (s *service) cartCtx(ctx context.Context, cartID uuid.UUID) context.Context {
	return s.logg.WithCartID(ctx, cartID.String())
}

func isClientError(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && pkgerrors.IsClientCode(typed.Code())
}

func cartLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
}

func itemLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeCartItemNotFound, "cart item not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
}
