package promotions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/db"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/blendpoint-backend/pkg/db/types"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/metrics"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Quote is a validated promotion and the discount it grants.
type Quote struct {
	Promotion models.Promotion `json:"promotion"`
	Discount  decimal.Decimal  `json:"discount"`
}

// CommitInput records one granted discount at checkout.
type CommitInput struct {
	PromotionID uuid.UUID
	CartID      *uuid.UUID
	OrderID     *uuid.UUID
	Context     OrderContext
}

// CreateInput is an operator-authored promotion.
type CreateInput struct {
	Code               string
	Description        string
	DiscountType       enums.DiscountType
	DiscountValue      decimal.Decimal
	MinimumOrderAmount decimal.Decimal
	ValidFrom          *time.Time
	ValidTo            *time.Time
	UsageLimit         *int
	UsagePerUserLimit  *int
	StoreIDs           []uuid.UUID
	CategoryIDs        []uuid.UUID
	ProductIDs         []uuid.UUID
}

// Service validates, prices and commits promotion codes.
type Service interface {
	ValidateAndPrice(ctx context.Context, code string, oc OrderContext) (*Quote, error)
	ValidateAndPriceTx(ctx context.Context, tx *gorm.DB, code string, oc OrderContext) (*Quote, error)
	EvaluateTx(ctx context.Context, tx *gorm.DB, promotionID uuid.UUID, oc OrderContext) (*Quote, error)
	CommitUsage(ctx context.Context, tx *gorm.DB, input CommitInput) (*models.PromotionUsage, error)

	Create(ctx context.Context, input CreateInput) (*models.Promotion, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Promotion, error)
	ListUsages(ctx context.Context, id uuid.UUID, params pagination.Params) (pagination.Page[models.PromotionUsage], error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	events  outbox.Emitter
	metrics *metrics.Engine
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the promotion service. metrics may be nil.
func NewService(repo *Repository, tx txRunner, events outbox.Emitter, m *metrics.Engine, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promotion repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, events: events, metrics: m, logg: logg, now: time.Now}, nil
}

// ValidateAndPrice looks a code up and runs the full eligibility chain.
func (s *service) ValidateAndPrice(ctx context.Context, code string, oc OrderContext) (*Quote, error) {
	return s.validateAndPrice(ctx, s.repo, code, oc)
}

// ValidateAndPriceTx is ValidateAndPrice reading through tx.
func (s *service) ValidateAndPriceTx(ctx context.Context, tx *gorm.DB, code string, oc OrderContext) (*Quote, error) {
	return s.validateAndPrice(ctx, s.repo.WithTx(tx), code, oc)
}

func (s *service) validateAndPrice(ctx context.Context, repo *Repository, code string, oc OrderContext) (*Quote, error) {
	if NormalizeCode(code) == "" {
		s.observe(pkgerrors.CodeInvalidPromoCode)
		return nil, invalidCode()
	}
	promo, err := repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.observe(pkgerrors.CodeInvalidPromoCode)
			return nil, invalidCode()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}
	return s.quote(ctx, repo, promo, oc)
}

// EvaluateTx re-checks an already attached promotion by id inside tx.
func (s *service) EvaluateTx(ctx context.Context, tx *gorm.DB, promotionID uuid.UUID, oc OrderContext) (*Quote, error) {
	repo := s.repo.WithTx(tx)
	promo, err := repo.FindByID(ctx, promotionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidCode()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}
	return s.quote(ctx, repo, promo, oc)
}

func (s *service) quote(ctx context.Context, repo *Repository, promo *models.Promotion, oc OrderContext) (*Quote, error) {
	if err := s.eligible(ctx, repo, promo, oc); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.observe(typed.Code())
		}
		return nil, err
	}
	s.observe("")
	return &Quote{
		Promotion: *promo,
		Discount:  ComputeDiscount(promo.DiscountType, promo.DiscountValue, oc.Subtotal),
	}, nil
}

func (s *service) eligible(ctx context.Context, repo *Repository, promo *models.Promotion, oc OrderContext) error {
	if err := checkStatic(promo, oc, s.now()); err != nil {
		return err
	}
	if oc.CustomerID != nil && promo.UsagePerUserLimit != nil {
		used, err := repo.CountCustomerUsages(ctx, promo.ID, *oc.CustomerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count promotion usages")
		}
		if used >= int64(*promo.UsagePerUserLimit) {
			return invalidCode()
		}
	}
	return checkScope(promo, oc)
}

// CommitUsage locks the promotion, re-runs eligibility and writes the usage
// row together with the used_count increment. Both land in tx or neither does.
func (s *service) CommitUsage(ctx context.Context, tx *gorm.DB, input CommitInput) (*models.PromotionUsage, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	promo, err := repo.LockByID(ctx, input.PromotionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidCode()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock promotion")
	}
	if err := s.eligible(ctx, repo, promo, input.Context); err != nil {
		return nil, err
	}

	usage := models.PromotionUsage{
		PromotionID:    promo.ID,
		CustomerID:     input.Context.CustomerID,
		CartID:         input.CartID,
		OrderID:        input.OrderID,
		DiscountAmount: ComputeDiscount(promo.DiscountType, promo.DiscountValue, input.Context.Subtotal),
	}
	if err := repo.InsertUsage(ctx, &usage); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert promotion usage")
	}
	ok, err := repo.IncrementUsedCount(ctx, promo.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment promotion usage")
	}
	if !ok {
		return nil, invalidCode()
	}

	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPromotionUsed,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   promo.ID,
		Data: payloads.PromotionUsedEvent{
			PromotionID:    promo.ID,
			Code:           promo.Code,
			CustomerID:     usage.CustomerID,
			OrderID:        usage.OrderID,
			DiscountAmount: usage.DiscountAmount,
			UsedCount:      promo.UsedCount + 1,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue promotion event")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"promotion_id": promo.ID.String(),
		"discount":     usage.DiscountAmount.StringFixed(2),
	}), "promotion.usage.committed")
	return &usage, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Promotion, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	promo := &models.Promotion{
		Code:               NormalizeCode(input.Code),
		Description:        input.Description,
		DiscountType:       input.DiscountType,
		DiscountValue:      input.DiscountValue,
		MinimumOrderAmount: input.MinimumOrderAmount,
		ValidFrom:          input.ValidFrom,
		ValidTo:            input.ValidTo,
		UsageLimit:         input.UsageLimit,
		UsagePerUserLimit:  input.UsagePerUserLimit,
		IsActive:           true,
		StoreIDs:           dbtypes.UUIDArray(input.StoreIDs),
		CategoryIDs:        dbtypes.UUIDArray(input.CategoryIDs),
		ProductIDs:         dbtypes.UUIDArray(input.ProductIDs),
	}
	if err := s.repo.Create(ctx, promo); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "promotion code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create promotion")
	}
	s.logg.Info(s.logg.WithField(ctx, "promotion_id", promo.ID.String()), "promotion.created")
	return promo, nil
}

func validateCreate(input CreateInput) error {
	fail := func(field, msg string) error {
		return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
	}
	if NormalizeCode(input.Code) == "" {
		return fail("code", "code is required")
	}
	if !input.DiscountType.IsValid() {
		return fail("discount_type", "discount type must be percentage or fixed")
	}
	if input.DiscountValue.Sign() <= 0 {
		return fail("discount_value", "discount value must be positive")
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.DiscountValue.GreaterThan(hundred) {
		return fail("discount_value", "percentage discount cannot exceed 100")
	}
	if input.MinimumOrderAmount.IsNegative() {
		return fail("minimum_order_amount", "minimum order amount must not be negative")
	}
	if input.ValidFrom != nil && input.ValidTo != nil && input.ValidTo.Before(*input.ValidFrom) {
		return fail("valid_to", "valid_to must not precede valid_from")
	}
	if input.UsageLimit != nil && *input.UsageLimit < 0 {
		return fail("usage_limit", "usage limit must not be negative")
	}
	if input.UsagePerUserLimit != nil && *input.UsagePerUserLimit < 0 {
		return fail("usage_per_user_limit", "per-user limit must not be negative")
	}
	return nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	found, err := s.repo.SetActive(ctx, id, false)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate promotion")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodePromotionNotFound, "promotion not found")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePromotionNotFound, "promotion not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}
	return promo, nil
}

func (s *service) ListUsages(ctx context.Context, id uuid.UUID, params pagination.Params) (pagination.Page[models.PromotionUsage], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.PromotionUsage]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return pagination.Page[models.PromotionUsage]{}, err
	}
	page, err := s.repo.ListUsages(ctx, id, params)
	if err != nil {
		return pagination.Page[models.PromotionUsage]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotion usages")
	}
	return page, nil
}

func (s *service) observe(code pkgerrors.Code) {
	if code == "" {
		s.metrics.PromotionCheck(metrics.OutcomeSuccess)
		return
	}
	s.metrics.PromotionCheck(string(code))
}
