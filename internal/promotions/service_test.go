package promotions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/internal/testdb"
	"github.com/angelmondragon/blendpoint-backend/pkg/db"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/metrics"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

type fixture struct {
	svc    *service
	client *db.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := testdb.Open(t)
	svc, err := NewService(
		NewRepository(client.DB()),
		client,
		outbox.NewService(outbox.NewRepository(client.DB()), nil),
		metrics.NewEngine(prometheus.NewRegistry()),
		nil,
	)
	require.NoError(t, err)
	return fixture{svc: svc.(*service), client: client}
}

func (f fixture) create(t *testing.T, input CreateInput) *models.Promotion {
	t.Helper()
	if input.DiscountType == "" {
		input.DiscountType = enums.DiscountTypePercentage
	}
	if input.DiscountValue.IsZero() {
		input.DiscountValue = decimal.NewFromInt(10)
	}
	promo, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)
	return promo
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func intPtr(v int) *int {
	return &v
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestComputeDiscountLaw(t *testing.T) {
	cases := []struct {
		name     string
		kind     enums.DiscountType
		value    string
		subtotal string
		want     string
	}{
		{"percentage", enums.DiscountTypePercentage, "20", "100", "20.00"},
		{"fixed under subtotal", enums.DiscountTypeFixed, "15", "100", "15.00"},
		{"fixed capped at subtotal", enums.DiscountTypeFixed, "150", "100", "100.00"},
		{"percentage rounds to cents", enums.DiscountTypePercentage, "15", "9.99", "1.50"},
		{"zero subtotal", enums.DiscountTypeFixed, "5", "0", "0.00"},
		{"full percentage", enums.DiscountTypePercentage, "100", "42.10", "42.10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeDiscount(tc.kind, dec(tc.value), dec(tc.subtotal))
			assert.Equal(t, tc.want, got.StringFixed(2))
			assert.False(t, dec(tc.subtotal).Sub(got).IsNegative())
		})
	}
}

func TestValidateAndPriceHappyPath(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateInput{Code: " spring20 ", DiscountValue: dec("20")})

	quote, err := f.svc.ValidateAndPrice(context.Background(), "Spring20", OrderContext{Subtotal: dec("100"), StoreID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, "SPRING20", quote.Promotion.Code)
	assert.Equal(t, "20.00", quote.Discount.StringFixed(2))
}

func TestValidateAndPriceRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	store := uuid.New()
	past := now.Add(-48 * time.Hour)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	inactive := f.create(t, CreateInput{Code: "OFF"})
	require.NoError(t, f.svc.Deactivate(ctx, inactive.ID))
	f.create(t, CreateInput{Code: "EXPIRED", ValidFrom: &past, ValidTo: &yesterday})
	f.create(t, CreateInput{Code: "LATER", ValidFrom: &tomorrow})
	f.create(t, CreateInput{Code: "MIN50", MinimumOrderAmount: dec("50")})
	f.create(t, CreateInput{Code: "CAPPED", UsageLimit: intPtr(0)})
	f.create(t, CreateInput{Code: "OTHERSTORE", StoreIDs: []uuid.UUID{uuid.New()}})
	f.create(t, CreateInput{Code: "CATEGORY", CategoryIDs: []uuid.UUID{uuid.New()}})

	cases := map[string]pkgerrors.Code{
		"":           pkgerrors.CodeInvalidPromoCode,
		"MISSING":    pkgerrors.CodeInvalidPromoCode,
		"OFF":        pkgerrors.CodeInvalidPromoCode,
		"EXPIRED":    pkgerrors.CodeInvalidPromoCode,
		"LATER":      pkgerrors.CodeInvalidPromoCode,
		"MIN50":      pkgerrors.CodeMinimumOrderNotMet,
		"CAPPED":     pkgerrors.CodeInvalidPromoCode,
		"OTHERSTORE": pkgerrors.CodeInvalidPromoCode,
		"CATEGORY":   pkgerrors.CodeInvalidPromoCode,
	}
	for code, want := range cases {
		t.Run(code, func(t *testing.T) {
			_, err := f.svc.ValidateAndPrice(ctx, code, OrderContext{Subtotal: dec("40"), StoreID: store})
			requireCode(t, err, want)
		})
	}
}

func TestMinimumOrderCheckedBeforeUsageCap(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateInput{Code: "BOTH", MinimumOrderAmount: dec("50"), UsageLimit: intPtr(0)})

	_, err := f.svc.ValidateAndPrice(context.Background(), "BOTH", OrderContext{Subtotal: dec("40")})
	requireCode(t, err, pkgerrors.CodeMinimumOrderNotMet)
}

func TestScopeMatchesIntersectingOrder(t *testing.T) {
	f := newFixture(t)
	store := uuid.New()
	category := uuid.New()
	product := uuid.New()
	f.create(t, CreateInput{
		Code:        "SCOPED",
		StoreIDs:    []uuid.UUID{store},
		CategoryIDs: []uuid.UUID{category, uuid.New()},
		ProductIDs:  []uuid.UUID{product},
	})

	_, err := f.svc.ValidateAndPrice(context.Background(), "SCOPED", OrderContext{
		Subtotal:    dec("10"),
		StoreID:     store,
		CategoryIDs: []uuid.UUID{category},
		ProductIDs:  []uuid.UUID{uuid.New(), product},
	})
	require.NoError(t, err)
}

func commit(f fixture, promoID uuid.UUID, oc OrderContext) (*models.PromotionUsage, error) {
	var usage *models.PromotionUsage
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		usage, err = f.svc.CommitUsage(context.Background(), tx, CommitInput{PromotionID: promoID, Context: oc})
		return err
	})
	return usage, err
}

func TestCommitUsageWritesUsageAndCounterTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	promo := f.create(t, CreateInput{Code: "ONCE", DiscountType: enums.DiscountTypeFixed, DiscountValue: dec("5"), UsagePerUserLimit: intPtr(1)})
	oc := OrderContext{Subtotal: dec("30"), CustomerID: &customer}

	usage, err := commit(f, promo.ID, oc)
	require.NoError(t, err)
	assert.Equal(t, "5.00", usage.DiscountAmount.StringFixed(2))

	reloaded, err := f.svc.Get(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsedCount)

	_, err = commit(f, promo.ID, oc)
	requireCode(t, err, pkgerrors.CodeInvalidPromoCode)
	_, err = f.svc.ValidateAndPrice(ctx, "ONCE", oc)
	requireCode(t, err, pkgerrors.CodeInvalidPromoCode)

	other := uuid.New()
	_, err = f.svc.ValidateAndPrice(ctx, "ONCE", OrderContext{Subtotal: dec("30"), CustomerID: &other})
	require.NoError(t, err)

	page, err := f.svc.ListUsages(ctx, promo.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestCommitUsageRollsBackWithCaller(t *testing.T) {
	f := newFixture(t)
	promo := f.create(t, CreateInput{Code: "ROLLBACK"})

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := f.svc.CommitUsage(context.Background(), tx, CommitInput{PromotionID: promo.ID, Context: OrderContext{Subtotal: dec("10")}}); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeInternal, "order insert failed")
	})
	require.Error(t, err)

	reloaded, err := f.svc.Get(context.Background(), promo.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.UsedCount)
	var usages int64
	require.NoError(t, f.client.DB().Model(&models.PromotionUsage{}).Count(&usages).Error)
	assert.Zero(t, usages)
}

func TestConcurrentCommitsRespectUsageLimit(t *testing.T) {
	f := newFixture(t)
	promo := f.create(t, CreateInput{Code: "LAST", UsageLimit: intPtr(1)})

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			customer := uuid.New()
			_, err := commit(f, promo.ID, OrderContext{Subtotal: dec("20"), CustomerID: &customer})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		requireCode(t, err, pkgerrors.CodeInvalidPromoCode)
	}
	assert.Equal(t, 1, successes)

	reloaded, err := f.svc.Get(context.Background(), promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsedCount)
}

func TestCreateValidatesAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{Code: "BAD", DiscountType: enums.DiscountTypePercentage, DiscountValue: dec("120")})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = f.svc.Create(ctx, CreateInput{Code: "BAD", DiscountType: "bogus", DiscountValue: dec("1")})
	requireCode(t, err, pkgerrors.CodeValidation)

	f.create(t, CreateInput{Code: "dup"})
	_, err = f.svc.Create(ctx, CreateInput{Code: "DUP", DiscountType: enums.DiscountTypeFixed, DiscountValue: dec("1")})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestDeactivateAndGetUnknownPromotion(t *testing.T) {
	f := newFixture(t)
	requireCode(t, f.svc.Deactivate(context.Background(), uuid.New()), pkgerrors.CodePromotionNotFound)
	_, err := f.svc.Get(context.Background(), uuid.New())
	requireCode(t, err, pkgerrors.CodePromotionNotFound)
}
