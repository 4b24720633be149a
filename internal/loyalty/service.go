package loyalty

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Entry describes one ledger movement. Points is always a positive magnitude;
// Credit and Debit choose the sign.
type Entry struct {
	Points        int64
	Type          enums.LoyaltyTransactionType
	Reason        string
	ReferenceType *enums.LoyaltyReferenceType
	ReferenceID   *uuid.UUID
	CreatedBy     *uuid.UUID
	// AllowNegative lets a debit push the balance below zero. Only operator
	// adjustments set it.
	AllowNegative bool
}

// Posting is the wallet state after an entry plus the ledger row written for it.
type Posting struct {
	Wallet      models.LoyaltyWallet      `json:"wallet"`
	Transaction models.LoyaltyTransaction `json:"transaction"`
}

// AdjustInput is an operator correction. Points is signed.
type AdjustInput struct {
	CustomerID uuid.UUID
	OperatorID uuid.UUID
	Points     int64
	Reason     string
}

// Reconciliation compares the cached balance with the ledger sum.
type Reconciliation struct {
	WalletID   uuid.UUID `json:"wallet_id"`
	Balance    int64     `json:"balance"`
	LedgerSum  int64     `json:"ledger_sum"`
	Consistent bool      `json:"consistent"`
}

// Service owns every loyalty balance change.
type Service interface {
	Credit(ctx context.Context, customerID uuid.UUID, entry Entry) (*Posting, error)
	Debit(ctx context.Context, customerID uuid.UUID, entry Entry) (*Posting, error)
	CreditTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, entry Entry) (*Posting, error)
	DebitTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, entry Entry) (*Posting, error)
	GetWallet(ctx context.Context, customerID uuid.UUID) (*models.LoyaltyWallet, error)
	ListTransactions(ctx context.Context, customerID uuid.UUID, params pagination.Params) (pagination.Page[models.LoyaltyTransaction], error)
	Adjust(ctx context.Context, input AdjustInput) (*Posting, error)
	Spend(ctx context.Context, customerID uuid.UUID, points int64, reason string) (*Posting, error)
	Reconcile(ctx context.Context, customerID uuid.UUID) (*Reconciliation, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	events outbox.Emitter
	logg   *logger.Logger
}

// NewService wires the wallet service.
func NewService(repo *Repository, tx txRunner, events outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("loyalty repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, events: events, logg: logg}, nil
}

func (s *service) Credit(ctx context.Context, customerID uuid.UUID, entry Entry) (*Posting, error) {
	var posting *Posting
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		posting, err = s.CreditTx(ctx, tx, customerID, entry)
		return err
	})
	return posting, err
}

func (s *service) Debit(ctx context.Context, customerID uuid.UUID, entry Entry) (*Posting, error) {
	var posting *Posting
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		posting, err = s.DebitTx(ctx, tx, customerID, entry)
		return err
	})
	return posting, err
}

// CreditTx appends a positive ledger row and raises the balance inside tx.
func (s *service) CreditTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, entry Entry) (*Posting, error) {
	if entry.Type == enums.LoyaltyTransactionRedeemed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "redeemed transactions cannot credit a wallet")
	}
	return s.post(ctx, tx, customerID, entry, 1)
}

// DebitTx appends a negative ledger row and lowers the balance inside tx.
// Without AllowNegative an overdraft fails with INSUFFICIENT_POINTS.
func (s *service) DebitTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, entry Entry) (*Posting, error) {
	if !entry.Type.AllowsDebit() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s transactions cannot debit a wallet", entry.Type))
	}
	return s.post(ctx, tx, customerID, entry, -1)
}

func (s *service) post(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, entry Entry, sign int64) (*Posting, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validateEntry(customerID, entry); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.EnsureWalletLocked(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	delta := sign * entry.Points
	if delta < 0 && !entry.AllowNegative && wallet.Balance+delta < 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"customer_id": customerID.String(),
			"balance":     wallet.Balance,
			"requested":   entry.Points,
		}), "loyalty.wallet.debit_rejected")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientPoints, "not enough points").WithDetails(map[string]any{
			"balance":   wallet.Balance,
			"requested": entry.Points,
		})
	}

	txn := models.LoyaltyTransaction{
		WalletID:      wallet.ID,
		Points:        delta,
		Type:          entry.Type,
		Reason:        strings.TrimSpace(entry.Reason),
		ReferenceType: entry.ReferenceType,
		ReferenceID:   entry.ReferenceID,
		CreatedBy:     entry.CreatedBy,
	}
	if err := repo.InsertTransaction(ctx, &txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert loyalty transaction")
	}
	balance, err := repo.AddToBalance(ctx, wallet.ID, delta)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}
	wallet.Balance = balance

	eventType := enums.EventLoyaltyPointsCredited
	if delta < 0 {
		eventType = enums.EventLoyaltyPointsDebited
	}
	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateLoyaltyWallet,
		AggregateID:   wallet.ID,
		Data: payloads.LoyaltyPointsEvent{
			WalletID:      wallet.ID,
			CustomerID:    customerID,
			TransactionID: txn.ID,
			Points:        delta,
			Balance:       balance,
			Type:          entry.Type,
			ReferenceType: entry.ReferenceType,
			ReferenceID:   entry.ReferenceID,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue loyalty event")
	}

	return &Posting{Wallet: *wallet, Transaction: txn}, nil
}

func validateEntry(customerID uuid.UUID, entry Entry) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if entry.Points <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points must be positive").WithDetails(map[string]any{"points": entry.Points})
	}
	if !entry.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", entry.Type))
	}
	if strings.TrimSpace(entry.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if entry.ReferenceType != nil && !entry.ReferenceType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reference type %q", *entry.ReferenceType))
	}
	if (entry.ReferenceType == nil) != (entry.ReferenceID == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference type and id must be set together")
	}
	return nil
}

// GetWallet returns the customer's wallet, creating an empty one on first use.
func (s *service) GetWallet(ctx context.Context, customerID uuid.UUID) (*models.LoyaltyWallet, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	var wallet *models.LoyaltyWallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		wallet, err = s.repo.WithTx(tx).EnsureWalletLocked(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) ListTransactions(ctx context.Context, customerID uuid.UUID, params pagination.Params) (pagination.Page[models.LoyaltyTransaction], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.LoyaltyTransaction]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	wallet, err := s.GetWallet(ctx, customerID)
	if err != nil {
		return pagination.Page[models.LoyaltyTransaction]{}, err
	}
	page, err := s.repo.ListTransactions(ctx, wallet.ID, params)
	if err != nil {
		return pagination.Page[models.LoyaltyTransaction]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return page, nil
}

// Adjust posts an operator correction. Negative adjustments may overdraw.
func (s *service) Adjust(ctx context.Context, input AdjustInput) (*Posting, error) {
	if input.OperatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operator id is required")
	}
	if input.Points == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment must be non-zero")
	}
	ref := enums.LoyaltyReferenceManual
	operator := input.OperatorID
	entry := Entry{
		Type:          enums.LoyaltyTransactionAdjusted,
		Reason:        input.Reason,
		ReferenceType: &ref,
		ReferenceID:   &operator,
		CreatedBy:     &operator,
		AllowNegative: true,
	}
	if input.Points > 0 {
		entry.Points = input.Points
		return s.Credit(ctx, input.CustomerID, entry)
	}
	entry.Points = -input.Points
	return s.Debit(ctx, input.CustomerID, entry)
}

// Spend redeems points on the customer's own behalf. It never overdraws.
func (s *service) Spend(ctx context.Context, customerID uuid.UUID, points int64, reason string) (*Posting, error) {
	return s.Debit(ctx, customerID, Entry{
		Points: points,
		Type:   enums.LoyaltyTransactionRedeemed,
		Reason: reason,
	})
}

func (s *service) Reconcile(ctx context.Context, customerID uuid.UUID) (*Reconciliation, error) {
	var out *Reconciliation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := repo.EnsureWalletLocked(ctx, customerID)
		if err != nil {
			return err
		}
		sum, err := repo.SumTransactions(ctx, wallet.ID)
		if err != nil {
			return err
		}
		out = &Reconciliation{WalletID: wallet.ID, Balance: wallet.Balance, LedgerSum: sum, Consistent: sum == wallet.Balance}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile wallet")
	}
	if !out.Consistent {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"wallet_id":  out.WalletID.String(),
			"balance":    out.Balance,
			"ledger_sum": out.LedgerSum,
		}), "loyalty.wallet.drift_detected")
	}
	return out, nil
}
