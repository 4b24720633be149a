package loyalty

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

// Repository persists wallets and their append-only ledger.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a loyalty repository bound to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// EnsureWalletLocked creates the customer's wallet if missing and returns it
// locked FOR UPDATE. Concurrent first-use inserts collapse on the unique
// customer_id index.
func (r *Repository) EnsureWalletLocked(ctx context.Context, customerID uuid.UUID) (*models.LoyaltyWallet, error) {
	seed := models.LoyaltyWallet{CustomerID: customerID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "customer_id"}}, DoNothing: true}).
		Create(&seed).Error; err != nil {
		return nil, err
	}

	var wallet models.LoyaltyWallet
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ?", customerID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// FindWallet returns the wallet for customerID without locking.
func (r *Repository) FindWallet(ctx context.Context, customerID uuid.UUID) (*models.LoyaltyWallet, error) {
	var wallet models.LoyaltyWallet
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// AddToBalance moves the cached balance by delta and returns the new value.
func (r *Repository) AddToBalance(ctx context.Context, walletID uuid.UUID, delta int64) (int64, error) {
	if err := r.db.WithContext(ctx).
		Model(&models.LoyaltyWallet{}).
		Where("id = ?", walletID).
		Update("balance", gorm.Expr("balance + ?", delta)).Error; err != nil {
		return 0, err
	}
	var balance int64
	if err := r.db.WithContext(ctx).
		Model(&models.LoyaltyWallet{}).
		Where("id = ?", walletID).
		Pluck("balance", &balance).Error; err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, txn *models.LoyaltyTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// ListTransactions returns the wallet's ledger newest first.
func (r *Repository) ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) (pagination.Page[models.LoyaltyTransaction], error) {
	query, err := pagination.Apply(r.db.WithContext(ctx).Where("wallet_id = ?", walletID), params)
	if err != nil {
		return pagination.Page[models.LoyaltyTransaction]{}, err
	}
	var rows []models.LoyaltyTransaction
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.LoyaltyTransaction]{}, err
	}
	return pagination.Build(rows, params, func(t models.LoyaltyTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	}), nil
}

// SumTransactions returns the signed sum of every ledger row for the wallet.
func (r *Repository) SumTransactions(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyTransaction{}).
		Where("wallet_id = ?", walletID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	return sum, err
}
