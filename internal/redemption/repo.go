package redemption

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

// Repository persists redeemable codes, their scans and receipt submissions.
type Repository struct {
	db *gorm.DB
}

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

// NormalizeCode trims presentation whitespace. Codes are case sensitive.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

func (r *Repository) CreateCode(ctx context.Context, code *models.QRCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *Repository) FindCodeByID(ctx context.Context, id uuid.UUID) (*models.QRCode, error) {
	var code models.QRCode
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

// LockCode reads a code FOR UPDATE. Every redemption of the same code
// queues behind this lock until the holder commits.
func (r *Repository) LockCode(ctx context.Context, code string) (*models.QRCode, error) {
	var row models.QRCode
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", NormalizeCode(code)).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) CountCustomerScans(ctx context.Context, codeID, customerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.QRCodeScan{}).
		Where("qr_code_id = ? AND customer_id = ?", codeID, customerID).
		Count(&count).Error
	return count, err
}

// IncrementTotalUses bumps total_uses only while below the cap. false means
// the cap was already reached.
func (r *Repository) IncrementTotalUses(ctx context.Context, codeID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.QRCode{}).
		Where("id = ? AND (max_total_uses IS NULL OR total_uses < max_total_uses)", codeID).
		UpdateColumn("total_uses", gorm.Expr("total_uses + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) InsertScan(ctx context.Context, scan *models.QRCodeScan) error {
	return r.db.WithContext(ctx).Create(scan).Error
}

func (r *Repository) SetCodeActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.QRCode{}).
		Where("id = ?", id).
		Update("is_active", active)
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) ListScans(ctx context.Context, codeID uuid.UUID, params pagination.Params) (pagination.Page[models.QRCodeScan], error) {
	query, err := pagination.Apply(r.db.WithContext(ctx).Where("qr_code_id = ?", codeID), params)
	if err != nil {
		return pagination.Page[models.QRCodeScan]{}, err
	}
	var rows []models.QRCodeScan
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.QRCodeScan]{}, err
	}
	return pagination.Build(rows, params, func(s models.QRCodeScan) pagination.Cursor {
		return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
	}), nil
}

func (r *Repository) CreateReceipt(ctx context.Context, receipt *models.ReceiptSubmission) error {
	if receipt.Status == "" {
		receipt.Status = enums.ReceiptStatusPending
	}
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *Repository) FindReceipt(ctx context.Context, id uuid.UUID) (*models.ReceiptSubmission, error) {
	var receipt models.ReceiptSubmission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *Repository) LockReceipt(ctx context.Context, id uuid.UUID) (*models.ReceiptSubmission, error) {
	var receipt models.ReceiptSubmission
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Review is the single write a receipt ever receives after submission.
type Review struct {
	Status          enums.ReceiptStatus
	OperatorID      uuid.UUID
	At              time.Time
	PointsAwarded   *int64
	TransactionID   *uuid.UUID
	RejectionReason *string
}

// MarkReviewed moves a pending receipt to its final status. false means it
// was no longer pending.
func (r *Repository) MarkReviewed(ctx context.Context, id uuid.UUID, review Review) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReceiptSubmission{}).
		Where("id = ? AND status = ?", id, enums.ReceiptStatusPending).
		Updates(map[string]any{
			"status":           review.Status,
			"reviewed_by":      review.OperatorID,
			"reviewed_at":      review.At,
			"points_awarded":   review.PointsAwarded,
			"transaction_id":   review.TransactionID,
			"rejection_reason": review.RejectionReason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListReceipts pages receipts, optionally narrowed to one customer or status.
func (r *Repository) ListReceipts(ctx context.Context, filter ReceiptFilter, params pagination.Params) (pagination.Page[models.ReceiptSubmission], error) {
	base := r.db.WithContext(ctx)
	if filter.CustomerID != nil {
		base = base.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		base = base.Where("status = ?", *filter.Status)
	}
	query, err := pagination.Apply(base, params)
	if err != nil {
		return pagination.Page[models.ReceiptSubmission]{}, err
	}
	var rows []models.ReceiptSubmission
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.ReceiptSubmission]{}, err
	}
	return pagination.Build(rows, params, func(rs models.ReceiptSubmission) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rs.CreatedAt, ID: rs.ID}
	}), nil
}

// ReceiptFilter narrows ListReceipts.
type ReceiptFilter struct {
	CustomerID *uuid.UUID
	Status     *enums.ReceiptStatus
}
