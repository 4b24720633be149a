package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/blendpoint-backend/internal/cart"
	"github.com/angelmondragon/blendpoint-backend/internal/catalog"
	"github.com/angelmondragon/blendpoint-backend/internal/loyalty"
	"github.com/angelmondragon/blendpoint-backend/internal/pricing"
	"github.com/angelmondragon/blendpoint-backend/internal/promotions"
	"github.com/angelmondragon/blendpoint-backend/internal/testdb"
	"github.com/angelmondragon/blendpoint-backend/pkg/db"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

type fixture struct {
	svc    Service
	carts  cart.Service
	promos promotions.Service
	wallet loyalty.Service
	client *db.Client
}

func newFixture(t *testing.T, settings Settings) fixture {
	t.Helper()
	client := testdb.Open(t)
	conn := client.DB()
	events := outbox.NewService(outbox.NewRepository(conn), nil)

	catalogRepo := catalog.NewRepository(conn)
	calc, err := pricing.NewCalculator(catalogRepo)
	require.NoError(t, err)
	promos, err := promotions.NewService(promotions.NewRepository(conn), client, events, nil, nil)
	require.NoError(t, err)
	wallet, err := loyalty.NewService(loyalty.NewRepository(conn), client, events, nil)
	require.NoError(t, err)
	cartRepo := cart.NewRepository(conn)
	carts, err := cart.NewService(cart.Deps{
		Repo:       cartRepo,
		Tx:         client,
		Catalog:    catalogRepo,
		Calculator: calc,
		Promotions: promos,
		Events:     events,
	})
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), cartRepo, client, carts, promos, wallet, events, settings, nil)
	require.NoError(t, err)
	return fixture{svc: svc, carts: carts, promos: promos, wallet: wallet, client: client}
}

func (f fixture) cartWith(t *testing.T, price string, quantity int) (*models.Cart, cart.Owner) {
	t.Helper()
	ctx := context.Background()
	product := &models.Product{Name: "Cold Brew", Price: dec(price), IsActive: true}
	require.NoError(t, f.client.DB().Create(product).Error)

	customer := uuid.New()
	owner := cart.Owner{CustomerID: &customer}
	c, err := f.carts.Init(ctx, uuid.New(), owner)
	require.NoError(t, err)
	c, err = f.carts.AddItem(ctx, c.ID, owner, cart.ItemSpec{Kind: enums.CartItemKindProduct, ProductID: &product.ID, Quantity: quantity})
	require.NoError(t, err)
	return c, owner
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestCheckoutFreezesOrderAndConvertsCart(t *testing.T) {
	f := newFixture(t, Settings{DefaultTaxRate: dec("0.08"), PointsPerUnit: dec("1")})
	ctx := context.Background()
	c, owner := f.cartWith(t, "12.50", 2)
	promo, err := f.promos.Create(ctx, promotions.CreateInput{
		Code:          "FIVEOFF",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: dec("5"),
		UsageLimit:    intPtr(10),
	})
	require.NoError(t, err)
	_, err = f.carts.ApplyPromotion(ctx, c.ID, owner, "fiveoff")
	require.NoError(t, err)

	result, err := f.svc.Checkout(ctx, c.ID, owner, Input{})
	require.NoError(t, err)
	order := result.Order
	assert.True(t, order.Subtotal.Equal(dec("25.00")))
	assert.True(t, order.Discount.Equal(dec("5.00")))
	assert.True(t, order.Tax.Equal(dec("1.60")))
	assert.True(t, order.Total.Equal(dec("21.60")))
	assert.Equal(t, int64(20), order.PointsEarned)
	require.Len(t, order.Lines, 1)
	assert.True(t, order.Lines[0].LineTotal.Equal(dec("25.00")))
	require.NotNil(t, order.PromotionID)
	assert.Equal(t, promo.ID, *order.PromotionID)

	require.NotNil(t, result.Posting)
	assert.Equal(t, int64(20), result.Posting.Wallet.Balance)

	stored, err := f.promos.Get(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)

	converted, err := f.carts.Get(ctx, c.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusConverted, converted.Status)

	_, err = f.svc.Checkout(ctx, c.ID, owner, Input{})
	requireCode(t, err, pkgerrors.CodeCartNotFound)

	var events int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderCreated).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	got, err := f.svc.GetOrder(ctx, order.ID, *owner.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	page, err := f.svc.ListOrders(ctx, *owner.CustomerID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()
	customer := uuid.New()
	owner := cart.Owner{CustomerID: &customer}
	c, err := f.carts.Init(ctx, uuid.New(), owner)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, c.ID, owner, Input{})
	requireCode(t, err, pkgerrors.CodeCartEmpty)

	still, err := f.carts.Get(ctx, c.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusActive, still.Status)
}

func TestCheckoutAfterPromotionExhaustedChargesFullPrice(t *testing.T) {
	f := newFixture(t, Settings{PointsPerUnit: dec("1")})
	ctx := context.Background()
	first, firstOwner := f.cartWith(t, "30.00", 1)
	second, secondOwner := f.cartWith(t, "30.00", 1)
	_, err := f.promos.Create(ctx, promotions.CreateInput{
		Code:          "ONCE",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: dec("10"),
		UsageLimit:    intPtr(1),
	})
	require.NoError(t, err)
	_, err = f.carts.ApplyPromotion(ctx, first.ID, firstOwner, "ONCE")
	require.NoError(t, err)
	_, err = f.carts.ApplyPromotion(ctx, second.ID, secondOwner, "ONCE")
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, first.ID, firstOwner, Input{})
	require.NoError(t, err)

	// The second cart's discount already dropped to zero on recalculation,
	// so its checkout goes through at full price.
	result, err := f.svc.Checkout(ctx, second.ID, secondOwner, Input{})
	require.NoError(t, err)
	assert.True(t, result.Order.Discount.IsZero())
	assert.Nil(t, result.Order.PromotionID)

	var usages int64
	require.NoError(t, f.client.DB().Model(&models.PromotionUsage{}).Count(&usages).Error)
	assert.Equal(t, int64(1), usages)
}

func TestCheckoutGuestsEarnNothing(t *testing.T) {
	f := newFixture(t, Settings{PointsPerUnit: dec("2")})
	ctx := context.Background()
	product := &models.Product{Name: "Tea", Price: dec("4.99"), IsActive: true}
	require.NoError(t, f.client.DB().Create(product).Error)
	guest := cart.Owner{SessionToken: "guest"}
	c, err := f.carts.Init(ctx, uuid.New(), guest)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.ID, guest, cart.ItemSpec{Kind: enums.CartItemKindProduct, ProductID: &product.ID, Quantity: 1})
	require.NoError(t, err)

	result, err := f.svc.Checkout(ctx, c.ID, guest, Input{})
	require.NoError(t, err)
	assert.Zero(t, result.Order.PointsEarned)
	assert.Nil(t, result.Posting)
	assert.True(t, result.Order.Total.Equal(dec("4.99")))
}

func TestCheckoutPointsFloor(t *testing.T) {
	f := newFixture(t, Settings{PointsPerUnit: dec("1.5")})
	c, owner := f.cartWith(t, "9.99", 1)

	result, err := f.svc.Checkout(context.Background(), c.ID, owner, Input{})
	require.NoError(t, err)
	assert.Equal(t, int64(14), result.Order.PointsEarned)

	rec, err := f.wallet.Reconcile(context.Background(), *owner.CustomerID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, int64(14), rec.Balance)
}

func TestCheckoutTaxRateValidation(t *testing.T) {
	f := newFixture(t, Settings{})
	c, owner := f.cartWith(t, "1.00", 1)
	bad := dec("1.5")
	_, err := f.svc.Checkout(context.Background(), c.ID, owner, Input{TaxRate: &bad})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = NewService(nil, nil, nil, nil, nil, nil, nil, Settings{}, nil)
	require.Error(t, err)
}

func intPtr(v int) *int {
	return &v
}
