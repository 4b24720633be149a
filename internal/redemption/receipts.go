package redemption

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/internal/loyalty"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/metrics"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox"
	"github.com/angelmondragon/blendpoint-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/blendpoint-backend/pkg/pagination"
)

// SubmitReceiptInput is a customer's claim for points on an in-store purchase.
// The image is uploaded elsewhere; only its URL is recorded.
type SubmitReceiptInput struct {
	CustomerID     uuid.UUID
	StoreID        *uuid.UUID
	ImageURL       string
	ReceiptNumber  *string
	PurchaseAmount *decimal.Decimal
}

// ReceiptReview is a reviewed receipt plus the wallet posting an approval made.
type ReceiptReview struct {
	Receipt models.ReceiptSubmission `json:"receipt"`
	Posting *loyalty.Posting         `json:"posting,omitempty"`
}

func (s *service) SubmitReceipt(ctx context.Context, input SubmitReceiptInput) (*models.ReceiptSubmission, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	imageURL := strings.TrimSpace(input.ImageURL)
	if !isHTTPURL(imageURL) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image_url must be an absolute http(s) url").
			WithDetails(map[string]any{"field": "image_url"})
	}
	if input.PurchaseAmount != nil && input.PurchaseAmount.Sign() < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase_amount must not be negative").
			WithDetails(map[string]any{"field": "purchase_amount"})
	}
	receipt := &models.ReceiptSubmission{
		CustomerID:     input.CustomerID,
		StoreID:        input.StoreID,
		ImageURL:       imageURL,
		ReceiptNumber:  input.ReceiptNumber,
		PurchaseAmount: input.PurchaseAmount,
	}
	if err := s.repo.CreateReceipt(ctx, receipt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create receipt submission")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"receipt_id":  receipt.ID.String(),
		"customer_id": receipt.CustomerID.String(),
	}), "redemption.receipt.submitted")
	return receipt, nil
}

// ApproveReceipt credits the operator-chosen points and closes the receipt in
// one transaction. A receipt is reviewed at most once.
func (s *service) ApproveReceipt(ctx context.Context, receiptID, operatorID uuid.UUID, points int64) (*ReceiptReview, error) {
	if operatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operator id is required")
	}
	if points < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be positive").
			WithDetails(map[string]any{"field": "points", "value": points})
	}

	var review *ReceiptReview
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		receipt, err := s.lockPending(ctx, repo, receiptID)
		if err != nil {
			return err
		}

		ref := enums.LoyaltyReferenceReceipt
		posting, err := s.wallet.CreditTx(ctx, tx, receipt.CustomerID, loyalty.Entry{
			Points:        points,
			Type:          enums.LoyaltyTransactionEarned,
			Reason:        "Receipt approved",
			ReferenceType: &ref,
			ReferenceID:   &receipt.ID,
			CreatedBy:     &operatorID,
		})
		if err != nil {
			return err
		}

		at := s.now().UTC()
		if err := s.close(ctx, repo, receipt.ID, Review{
			Status:        enums.ReceiptStatusApproved,
			OperatorID:    operatorID,
			At:            at,
			PointsAwarded: &points,
			TransactionID: &posting.Transaction.ID,
		}); err != nil {
			return err
		}
		receipt.Status = enums.ReceiptStatusApproved
		receipt.ReviewedBy = &operatorID
		receipt.ReviewedAt = &at
		receipt.PointsAwarded = &points
		receipt.TransactionID = &posting.Transaction.ID

		if err := s.emitReview(ctx, tx, enums.EventReceiptApproved, receipt, points, ""); err != nil {
			return err
		}
		review = &ReceiptReview{Receipt: *receipt, Posting: posting}
		return nil
	})
	if err != nil {
		s.observeFailure(ctx, sourceReceipt, err)
		return nil, err
	}

	s.metrics.Redemption(sourceReceipt, metrics.OutcomeSuccess, points)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"receipt_id":  receiptID.String(),
		"operator_id": operatorID.String(),
		"points":      points,
	}), "redemption.receipt.approved")
	return review, nil
}

func (s *service) RejectReceipt(ctx context.Context, receiptID, operatorID uuid.UUID, reason string) (*ReceiptReview, error) {
	if operatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operator id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required").
			WithDetails(map[string]any{"field": "reason"})
	}

	var review *ReceiptReview
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		receipt, err := s.lockPending(ctx, repo, receiptID)
		if err != nil {
			return err
		}
		at := s.now().UTC()
		if err := s.close(ctx, repo, receipt.ID, Review{
			Status:          enums.ReceiptStatusRejected,
			OperatorID:      operatorID,
			At:              at,
			RejectionReason: &reason,
		}); err != nil {
			return err
		}
		receipt.Status = enums.ReceiptStatusRejected
		receipt.ReviewedBy = &operatorID
		receipt.ReviewedAt = &at
		receipt.RejectionReason = &reason

		if err := s.emitReview(ctx, tx, enums.EventReceiptRejected, receipt, 0, reason); err != nil {
			return err
		}
		review = &ReceiptReview{Receipt: *receipt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Redemption(sourceReceipt, metrics.OutcomeRejected, 0)
	s.logg.Info(s.logg.WithField(ctx, "receipt_id", receiptID.String()), "redemption.receipt.rejected")
	return review, nil
}

func (s *service) lockPending(ctx context.Context, repo *Repository, id uuid.UUID) (*models.ReceiptSubmission, error) {
	receipt, err := repo.LockReceipt(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeReceiptNotFound, "receipt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock receipt")
	}
	if receipt.Status != enums.ReceiptStatusPending {
		return nil, alreadyReviewed(receipt.Status)
	}
	return receipt, nil
}

func (s *service) close(ctx context.Context, repo *Repository, id uuid.UUID, review Review) error {
	ok, err := repo.MarkReviewed(ctx, id, review)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update receipt")
	}
	if !ok {
		return alreadyReviewed("")
	}
	return nil
}

func (s *service) emitReview(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, receipt *models.ReceiptSubmission, points int64, reason string) error {
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateReceipt,
		AggregateID:   receipt.ID,
		Data: payloads.ReceiptReviewedEvent{
			ReceiptID:  receipt.ID,
			CustomerID: receipt.CustomerID,
			OperatorID: *receipt.ReviewedBy,
			Status:     receipt.Status,
			Points:     points,
			Reason:     reason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue receipt event")
	}
	return nil
}

func alreadyReviewed(status enums.ReceiptStatus) error {
	err := pkgerrors.New(pkgerrors.CodeReceiptAlreadyReviewed, "receipt has already been reviewed")
	if status != "" {
		return err.WithDetails(map[string]any{"status": status})
	}
	return err
}

func (s *service) GetReceipt(ctx context.Context, receiptID uuid.UUID) (*models.ReceiptSubmission, error) {
	receipt, err := s.repo.FindReceipt(ctx, receiptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeReceiptNotFound, "receipt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt")
	}
	return receipt, nil
}

func (s *service) ListReceipts(ctx context.Context, filter ReceiptFilter, params pagination.Params) (pagination.Page[models.ReceiptSubmission], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.ReceiptSubmission]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return pagination.Page[models.ReceiptSubmission]{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown receipt status").
			WithDetails(map[string]any{"field": "status"})
	}
	page, err := s.repo.ListReceipts(ctx, filter, params)
	if err != nil {
		return pagination.Page[models.ReceiptSubmission]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipts")
	}
	return page, nil
}

func isHTTPURL(raw string) bool {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}
