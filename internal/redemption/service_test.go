package redemption

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

	"github.com/angelmondragon/blendpoint-backend/internal/loyalty"
	"github.com/angelmondragon/blendpoint-backend/internal/testdb"
	"github.com/angelmondragon/blendpoint-backend/pkg/db"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/metrics"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *service
	wallet loyalty.Service
	client *db.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := testdb.Open(t)
	conn := client.DB()
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	wallet, err := loyalty.NewService(loyalty.NewRepository(conn), client, events, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), client, wallet, events, metrics.NewEngine(prometheus.NewRegistry()), nil)
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time { return fixedNow }
	return fixture{svc: impl, wallet: wallet, client: client}
}

func (f fixture) code(t *testing.T, input CreateCodeInput) *models.QRCode {
	t.Helper()
	if input.Code == "" {
		input.Code = "QR-" + uuid.NewString()[:8]
	}
	if input.Name == "" {
		input.Name = "Spring promo"
	}
	if input.Points == 0 {
		input.Points = 50
	}
	code, err := f.svc.CreateCode(context.Background(), input)
	require.NoError(t, err)
	return code
}

func (f fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func (f fixture) requireReconciled(t *testing.T, customer uuid.UUID, balance int64) {
	t.Helper()
	rec, err := f.wallet.Reconcile(context.Background(), customer)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, balance, rec.Balance)
}

func intPtr(v int) *int {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestRedeemCreditsWalletAndRecordsScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.code(t, CreateCodeInput{Code: "WELCOME50", Points: 50})
	customer := uuid.New()

	got, err := f.svc.Redeem(ctx, "  WELCOME50 ", customer)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Scan.PointsAwarded)
	assert.Equal(t, int64(50), got.Wallet.Balance)
	assert.Equal(t, 1, got.Code.TotalUses)
	assert.Equal(t, got.Transaction.ID, got.Scan.TransactionID)
	require.NotNil(t, got.Transaction.ReferenceType)
	assert.Equal(t, enums.LoyaltyReferenceQRCode, *got.Transaction.ReferenceType)
	require.NotNil(t, got.Transaction.ReferenceID)
	assert.Equal(t, code.ID, *got.Transaction.ReferenceID)

	assert.Equal(t, int64(1), f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventQRCodeRedeemed))
	f.requireReconciled(t, customer, 50)
}

func TestRedeemStateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := fixedNow.Add(-48 * time.Hour)
	future := fixedNow.Add(48 * time.Hour)

	inactive := f.code(t, CreateCodeInput{})
	require.NoError(t, f.svc.DeactivateCode(ctx, inactive.ID))
	inactiveAndExpired := f.code(t, CreateCodeInput{AvailableFrom: timePtr(past.Add(-time.Hour)), ExpiresAt: timePtr(past)})
	require.NoError(t, f.svc.DeactivateCode(ctx, inactiveAndExpired.ID))
	notYet := f.code(t, CreateCodeInput{AvailableFrom: timePtr(future)})
	expired := f.code(t, CreateCodeInput{ExpiresAt: timePtr(past)})
	expiresNow := f.code(t, CreateCodeInput{ExpiresAt: timePtr(fixedNow)})
	f.code(t, CreateCodeInput{Code: "CaseCode"})

	cases := []struct {
		name string
		code string
		want pkgerrors.Code
	}{
		{"unknown", "NOPE", pkgerrors.CodeQRCodeNotFound},
		{"blank", "   ", pkgerrors.CodeQRCodeNotFound},
		{"case sensitive", "casecode", pkgerrors.CodeQRCodeNotFound},
		{"inactive", inactive.Code, pkgerrors.CodeQRCodeInactive},
		{"inactive wins over expired", inactiveAndExpired.Code, pkgerrors.CodeQRCodeInactive},
		{"not yet available", notYet.Code, pkgerrors.CodeQRCodeNotAvailable},
		{"expired", expired.Code, pkgerrors.CodeQRCodeExpired},
		{"expiry is exclusive", expiresNow.Code, pkgerrors.CodeQRCodeExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Redeem(ctx, tc.code, uuid.New())
			requireCode(t, err, tc.want)
		})
	}

	assert.Zero(t, f.count(t, &models.QRCodeScan{}, "1 = 1"))
	assert.Zero(t, f.count(t, &models.LoyaltyTransaction{}, "1 = 1"))
}

func TestRedeemPerCustomerLimitCheckedBeforeTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.code(t, CreateCodeInput{MaxTotalUses: intPtr(1), MaxUsesPerCustomer: intPtr(1)})
	customer := uuid.New()

	_, err := f.svc.Redeem(ctx, code.Code, customer)
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, code.Code, customer)
	requireCode(t, err, pkgerrors.CodeQRCodeLimitExceeded)
	_, err = f.svc.Redeem(ctx, code.Code, uuid.New())
	requireCode(t, err, pkgerrors.CodeQRCodeTotalLimitReached)

	stored, err := f.svc.GetCode(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalUses)
	f.requireReconciled(t, customer, code.Points)
}

func TestRedeemPerCustomerLimitAllowsRepeatsUpToCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.code(t, CreateCodeInput{Points: 10, MaxUsesPerCustomer: intPtr(2)})
	customer := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Redeem(ctx, code.Code, customer)
		require.NoError(t, err)
	}
	_, err := f.svc.Redeem(ctx, code.Code, customer)
	requireCode(t, err, pkgerrors.CodeQRCodeLimitExceeded)

	_, err = f.svc.Redeem(ctx, code.Code, uuid.New())
	require.NoError(t, err)
	f.requireReconciled(t, customer, 20)
}

func TestRedeemConcurrentLastSlot(t *testing.T) {
	f := newFixture(t)
	code := f.code(t, CreateCodeInput{MaxTotalUses: intPtr(1)})
	customers := []uuid.UUID{uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	errs := make([]error, len(customers))
	start := make(chan struct{})
	for i, customer := range customers {
		wg.Add(1)
		go func(i int, customer uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Redeem(context.Background(), code.Code, customer)
		}(i, customer)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireCode(t, err, pkgerrors.CodeQRCodeTotalLimitReached)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := f.svc.GetCode(context.Background(), code.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalUses)
	assert.Equal(t, int64(1), f.count(t, &models.QRCodeScan{}, "qr_code_id = ?", code.ID))
	assert.Equal(t, int64(1), f.count(t, &models.LoyaltyTransaction{}, "1 = 1"))
}

func TestRedeemConcurrentWithinCap(t *testing.T) {
	f := newFixture(t)
	code := f.code(t, CreateCodeInput{Points: 5, MaxTotalUses: intPtr(3)})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Redeem(context.Background(), code.Code, uuid.New()); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, int64(3), f.count(t, &models.QRCodeScan{}, "qr_code_id = ?", code.ID))
}

func TestRedeemConcurrentSameCustomerHonoursPerCustomerCap(t *testing.T) {
	f := newFixture(t)
	code := f.code(t, CreateCodeInput{Points: 25, MaxUsesPerCustomer: intPtr(1)})
	customer := uuid.New()
	const attempts = 6

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Redeem(context.Background(), code.Code, customer)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireCode(t, err, pkgerrors.CodeQRCodeLimitExceeded)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := f.svc.GetCode(context.Background(), code.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalUses)
	assert.Equal(t, int64(1), f.count(t, &models.QRCodeScan{}, "qr_code_id = ? AND customer_id = ?", code.ID, customer))
	f.requireReconciled(t, customer, code.Points)
}

func TestCreateCodeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := fixedNow

	cases := []struct {
		name  string
		input CreateCodeInput
	}{
		{"missing code", CreateCodeInput{Name: "x", Points: 1}},
		{"missing name", CreateCodeInput{Code: "A", Points: 1}},
		{"zero points", CreateCodeInput{Code: "A", Name: "x"}},
		{"window inverted", CreateCodeInput{Code: "A", Name: "x", Points: 1, AvailableFrom: &from, ExpiresAt: &from}},
		{"zero total cap", CreateCodeInput{Code: "A", Name: "x", Points: 1, MaxTotalUses: intPtr(0)}},
		{"zero customer cap", CreateCodeInput{Code: "A", Name: "x", Points: 1, MaxUsesPerCustomer: intPtr(0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateCode(ctx, tc.input)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}

	f.code(t, CreateCodeInput{Code: "DUP"})
	_, err := f.svc.CreateCode(ctx, CreateCodeInput{Code: "DUP", Name: "again", Points: 1})
	requireCode(t, err, pkgerrors.CodeConflict)

	err = f.svc.DeactivateCode(ctx, uuid.New())
	requireCode(t, err, pkgerrors.CodeQRCodeNotFound)
}

func TestListScansPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.code(t, CreateCodeInput{Points: 1})
	for i := 0; i < 3; i++ {
		_, err := f.svc.Redeem(ctx, code.Code, uuid.New())
		require.NoError(t, err)
	}

	page, err := f.svc.ListScans(ctx, code.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListScans(ctx, code.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)

	_, err = f.svc.ListScans(ctx, uuid.New(), pagination.Params{})
	requireCode(t, err, pkgerrors.CodeQRCodeNotFound)
}

func TestReceiptApprovalIsOneTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	operator := uuid.New()
	amount := decimal.RequireFromString("18.40")

	receipt, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{
		CustomerID:     customer,
		ImageURL:       "https://cdn.example.com/receipts/1.jpg",
		PurchaseAmount: &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReceiptStatusPending, receipt.Status)

	review, err := f.svc.ApproveReceipt(ctx, receipt.ID, operator, 120)
	require.NoError(t, err)
	assert.Equal(t, enums.ReceiptStatusApproved, review.Receipt.Status)
	require.NotNil(t, review.Posting)
	assert.Equal(t, int64(120), review.Posting.Wallet.Balance)
	require.NotNil(t, review.Posting.Transaction.ReferenceType)
	assert.Equal(t, enums.LoyaltyReferenceReceipt, *review.Posting.Transaction.ReferenceType)

	_, err = f.svc.ApproveReceipt(ctx, receipt.ID, operator, 120)
	requireCode(t, err, pkgerrors.CodeReceiptAlreadyReviewed)
	_, err = f.svc.RejectReceipt(ctx, receipt.ID, operator, "duplicate")
	requireCode(t, err, pkgerrors.CodeReceiptAlreadyReviewed)

	stored, err := f.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PointsAwarded)
	assert.Equal(t, int64(120), *stored.PointsAwarded)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, review.Posting.Transaction.ID, *stored.TransactionID)

	assert.Equal(t, int64(1), f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventReceiptApproved))
	f.requireReconciled(t, customer, 120)
}

func TestReceiptRejectionAwardsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()

	receipt, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{CustomerID: customer, ImageURL: "https://cdn.example.com/r.png"})
	require.NoError(t, err)

	_, err = f.svc.RejectReceipt(ctx, receipt.ID, uuid.New(), " ")
	requireCode(t, err, pkgerrors.CodeValidation)

	review, err := f.svc.RejectReceipt(ctx, receipt.ID, uuid.New(), "illegible")
	require.NoError(t, err)
	assert.Equal(t, enums.ReceiptStatusRejected, review.Receipt.Status)
	assert.Nil(t, review.Posting)

	_, err = f.svc.ApproveReceipt(ctx, receipt.ID, uuid.New(), 10)
	requireCode(t, err, pkgerrors.CodeReceiptAlreadyReviewed)
	f.requireReconciled(t, customer, 0)
}

func TestReceiptValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	negative := decimal.NewFromInt(-1)

	for _, raw := range []string{"not a url", "ftp://files.example.com/r.png", "file:///tmp/r.png", "javascript://x/%0aalert(1)"} {
		_, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{CustomerID: uuid.New(), ImageURL: raw})
		requireCode(t, err, pkgerrors.CodeValidation)
	}
	receipt, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{CustomerID: uuid.New(), ImageURL: "HTTP://cdn.example.com/r.png"})
	require.NoError(t, err)
	assert.Equal(t, "HTTP://cdn.example.com/r.png", receipt.ImageURL)
	_, err = f.svc.SubmitReceipt(ctx, SubmitReceiptInput{ImageURL: "https://cdn.example.com/r.png"})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = f.svc.SubmitReceipt(ctx, SubmitReceiptInput{CustomerID: uuid.New(), ImageURL: "https://cdn.example.com/r.png", PurchaseAmount: &negative})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.ApproveReceipt(ctx, uuid.New(), uuid.New(), 10)
	requireCode(t, err, pkgerrors.CodeReceiptNotFound)
	_, err = f.svc.ApproveReceipt(ctx, uuid.New(), uuid.New(), 0)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestListReceiptsFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{CustomerID: customer, ImageURL: "https://cdn.example.com/r.png"})
		require.NoError(t, err)
	}
	page, err := f.svc.ListReceipts(ctx, ReceiptFilter{CustomerID: &customer}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	_, err = f.svc.RejectReceipt(ctx, page.Items[0].ID, uuid.New(), "blurry")
	require.NoError(t, err)

	pending := enums.ReceiptStatusPending
	page, err = f.svc.ListReceipts(ctx, ReceiptFilter{Status: &pending}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	bogus := enums.ReceiptStatus("lost")
	_, err = f.svc.ListReceipts(ctx, ReceiptFilter{Status: &bogus}, pagination.Params{})
	requireCode(t, err, pkgerrors.CodeValidation)
}
