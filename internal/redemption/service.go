package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/internal/loyalty"
	"github.com/angelmondragon/blendpoint-backend/pkg/db"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/metrics"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

const (
	sourceQR      = "qr"
	sourceReceipt = "receipt"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Redemption is the outcome of one successful scan.
type Redemption struct {
	Code        models.QRCode             `json:"code"`
	Scan        models.QRCodeScan         `json:"scan"`
	Wallet      models.LoyaltyWallet      `json:"wallet"`
	Transaction models.LoyaltyTransaction `json:"transaction"`
}

// CreateCodeInput is an operator-authored QR code.
type CreateCodeInput struct {
	Code               string
	Name               string
	Points             int64
	AvailableFrom      *time.Time
	ExpiresAt          *time.Time
	MaxTotalUses       *int
	MaxUsesPerCustomer *int
}

// Service exchanges QR codes and approved receipts for loyalty points.
type Service interface {
	Redeem(ctx context.Context, code string, customerID uuid.UUID) (*Redemption, error)
	CreateCode(ctx context.Context, input CreateCodeInput) (*models.QRCode, error)
	DeactivateCode(ctx context.Context, id uuid.UUID) error
	GetCode(ctx context.Context, id uuid.UUID) (*models.QRCode, error)
	ListScans(ctx context.Context, codeID uuid.UUID, params pagination.Params) (pagination.Page[models.QRCodeScan], error)

	SubmitReceipt(ctx context.Context, input SubmitReceiptInput) (*models.ReceiptSubmission, error)
	ApproveReceipt(ctx context.Context, receiptID, operatorID uuid.UUID, points int64) (*ReceiptReview, error)
	RejectReceipt(ctx context.Context, receiptID, operatorID uuid.UUID, reason string) (*ReceiptReview, error)
	GetReceipt(ctx context.Context, receiptID uuid.UUID) (*models.ReceiptSubmission, error)
	ListReceipts(ctx context.Context, filter ReceiptFilter, params pagination.Params) (pagination.Page[models.ReceiptSubmission], error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	wallet  loyalty.Service
	events  outbox.Emitter
	metrics *metrics.Engine
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the redemption ledger. metrics may be nil.
func NewService(repo *Repository, tx txRunner, wallet loyalty.Service, events outbox.Emitter, m *metrics.Engine, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("redemption repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if wallet == nil {
		return nil, fmt.Errorf("loyalty service required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, wallet: wallet, events: events, metrics: m, logg: logg, now: time.Now}, nil
}

// Redeem runs lock, checks, counter increment, scan insert and wallet credit
// in one transaction. Any failure leaves no trace.
func (s *service) Redeem(ctx context.Context, code string, customerID uuid.UUID) (*Redemption, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if NormalizeCode(code) == "" {
		s.metrics.Redemption(sourceQR, string(pkgerrors.CodeQRCodeNotFound), 0)
		return nil, pkgerrors.New(pkgerrors.CodeQRCodeNotFound, "code not found")
	}
	ctx = s.logg.WithCustomerID(ctx, customerID.String())

	var out *Redemption
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.redeemTx(ctx, tx, code, customerID)
		return err
	})
	if err != nil {
		s.observeFailure(ctx, sourceQR, err)
		return nil, err
	}

	s.metrics.Redemption(sourceQR, metrics.OutcomeSuccess, out.Scan.PointsAwarded)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"qr_code_id": out.Code.ID.String(),
		"scan_id":    out.Scan.ID.String(),
		"points":     out.Scan.PointsAwarded,
		"total_uses": out.Code.TotalUses,
	}), "redemption.qr.redeemed")
	return out, nil
}

func (s *service) redeemTx(ctx context.Context, tx *gorm.DB, raw string, customerID uuid.UUID) (*Redemption, error) {
	repo := s.repo.WithTx(tx)
	code, err := repo.LockCode(ctx, raw)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeQRCodeNotFound, "code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock qr code")
	}
	if err := checkWindow(code, s.now()); err != nil {
		return nil, err
	}
	if code.MaxUsesPerCustomer != nil {
		prior, err := repo.CountCustomerScans(ctx, code.ID, customerID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count customer scans")
		}
		if err := checkCustomerLimit(code, prior); err != nil {
			return nil, err
		}
	}
	if err := checkTotalLimit(code); err != nil {
		return nil, err
	}
	ok, err := repo.IncrementTotalUses(ctx, code.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment qr code uses")
	}
	if !ok {
		return nil, totalLimitReached()
	}
	code.TotalUses++

	ref := enums.LoyaltyReferenceQRCode
	posting, err := s.wallet.CreditTx(ctx, tx, customerID, loyalty.Entry{
		Points:        code.Points,
		Type:          enums.LoyaltyTransactionEarned,
		Reason:        fmt.Sprintf("QR code %s", code.Name),
		ReferenceType: &ref,
		ReferenceID:   &code.ID,
	})
	if err != nil {
		return nil, err
	}

	scan := models.QRCodeScan{
		QRCodeID:      code.ID,
		CustomerID:    customerID,
		PointsAwarded: code.Points,
		TransactionID: posting.Transaction.ID,
	}
	if err := repo.InsertScan(ctx, &scan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert qr code scan")
	}

	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventQRCodeRedeemed,
		AggregateType: enums.AggregateQRCode,
		AggregateID:   code.ID,
		Data: payloads.QRCodeRedeemedEvent{
			QRCodeID:   code.ID,
			ScanID:     scan.ID,
			CustomerID: customerID,
			Points:     code.Points,
			TotalUses:  code.TotalUses,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue redemption event")
	}

	return &Redemption{
		Code:        *code,
		Scan:        scan,
		Wallet:      posting.Wallet,
		Transaction: posting.Transaction,
	}, nil
}

func (s *service) CreateCode(ctx context.Context, input CreateCodeInput) (*models.QRCode, error) {
	if err := validateCreateCode(input); err != nil {
		return nil, err
	}
	code := &models.QRCode{
		Code:               NormalizeCode(input.Code),
		Name:               input.Name,
		Points:             input.Points,
		IsActive:           true,
		AvailableFrom:      input.AvailableFrom,
		ExpiresAt:          input.ExpiresAt,
		MaxTotalUses:       input.MaxTotalUses,
		MaxUsesPerCustomer: input.MaxUsesPerCustomer,
	}
	if err := s.repo.CreateCode(ctx, code); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "qr code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create qr code")
	}
	s.logg.Info(s.logg.WithField(ctx, "qr_code_id", code.ID.String()), "redemption.qr.created")
	return code, nil
}

func validateCreateCode(input CreateCodeInput) error {
	field := func(name, msg string) error {
		return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": name})
	}
	if NormalizeCode(input.Code) == "" {
		return field("code", "code is required")
	}
	if input.Name == "" {
		return field("name", "name is required")
	}
	if input.Points < 1 {
		return field("points", "points must be positive")
	}
	if input.AvailableFrom != nil && input.ExpiresAt != nil && !input.ExpiresAt.After(*input.AvailableFrom) {
		return field("expires_at", "expires_at must be after available_from")
	}
	if input.MaxTotalUses != nil && *input.MaxTotalUses < 1 {
		return field("max_total_uses", "max_total_uses must be positive")
	}
	if input.MaxUsesPerCustomer != nil && *input.MaxUsesPerCustomer < 1 {
		return field("max_uses_per_customer", "max_uses_per_customer must be positive")
	}
	return nil
}

// DeactivateCode flips the active flag. Scans and counters are kept.
func (s *service) DeactivateCode(ctx context.Context, id uuid.UUID) error {
	found, err := s.repo.SetCodeActive(ctx, id, false)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate qr code")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeQRCodeNotFound, "code not found")
	}
	s.logg.Info(s.logg.WithField(ctx, "qr_code_id", id.String()), "redemption.qr.deactivated")
	return nil
}

func (s *service) GetCode(ctx context.Context, id uuid.UUID) (*models.QRCode, error) {
	code, err := s.repo.FindCodeByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeQRCodeNotFound, "code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load qr code")
	}
	return code, nil
}

func (s *service) ListScans(ctx context.Context, codeID uuid.UUID, params pagination.Params) (pagination.Page[models.QRCodeScan], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.QRCodeScan]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if _, err := s.GetCode(ctx, codeID); err != nil {
		return pagination.Page[models.QRCodeScan]{}, err
	}
	page, err := s.repo.ListScans(ctx, codeID, params)
	if err != nil {
		return pagination.Page[models.QRCodeScan]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list qr code scans")
	}
	return page, nil
}

// observeFailure counts a failed redemption. Client-visible rejections are
// labelled by code; everything else is an error and gets logged.
func (s *service) observeFailure(ctx context.Context, source string, err error) {
	typed := pkgerrors.As(err)
	if typed != nil && pkgerrors.IsClientCode(typed.Code()) {
		s.metrics.Redemption(source, string(typed.Code()), 0)
		s.logg.Info(s.logg.WithField(ctx, "reason", string(typed.Code())), "redemption."+source+".rejected")
		return
	}
	s.metrics.Redemption(source, metrics.OutcomeError, 0)
	s.logg.Error(ctx, "redemption."+source+".failed", err)
}
