package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	"github.com/angelmondragon/blendpoint-backend/api/validators"
	"github.com/angelmondragon/blendpoint-backend/internal/redemption"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

type submitReceiptRequest struct {
	ImageURL       string           `json:"image_url" validate:"required,url,max=2048"`
	StoreID        *uuid.UUID       `json:"store_id"`
	ReceiptNumber  *string          `json:"receipt_number" validate:"omitempty,max=128"`
	PurchaseAmount *decimal.Decimal `json:"purchase_amount"`
}

func ReceiptSubmit(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload submitReceiptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ReceiptNumber != nil {
			trimmed := validators.SanitizeString(*payload.ReceiptNumber, 128)
			payload.ReceiptNumber = &trimmed
		}
		receipt, err := svc.SubmitReceipt(r.Context(), redemption.SubmitReceiptInput{
			CustomerID:     customerID,
			StoreID:        payload.StoreID,
			ImageURL:       payload.ImageURL,
			ReceiptNumber:  payload.ReceiptNumber,
			PurchaseAmount: payload.PurchaseAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReceiptResponse(*receipt))
	}
}

// ReceiptListMine lists the caller's own submissions.
func ReceiptListMine(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listReceipts(w, r, svc, logg, &customerID)
	}
}

// AdminReceiptList lists submissions across customers, optionally filtered by
// status and customer_id.
func AdminReceiptList(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := validators.ParseOptionalUUIDQuery(r, "customer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listReceipts(w, r, svc, logg, customerID)
	}
}

func listReceipts(w http.ResponseWriter, r *http.Request, svc redemption.Service, logg *logger.Logger, customerID *uuid.UUID) {
	params, err := validators.ParsePagination(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	filter := redemption.ReceiptFilter{CustomerID: customerID}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := enums.ParseReceiptStatus(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"}))
			return
		}
		filter.Status = &status
	}
	page, err := svc.ListReceipts(r.Context(), filter, params)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, mapPage(page.Items, page.NextCursor, newReceiptResponse))
}

type approveReceiptRequest struct {
	Points int64 `json:"points" validate:"gt=0"`
}

type rejectReceiptRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type receiptReviewResponse struct {
	Receipt receiptResponse  `json:"receipt"`
	Loyalty *postingResponse `json:"loyalty,omitempty"`
}

func newReceiptReviewResponse(review *redemption.ReceiptReview) receiptReviewResponse {
	resp := receiptReviewResponse{Receipt: newReceiptResponse(review.Receipt)}
	if review.Posting != nil {
		posting := newPostingResponse(review.Posting.Wallet, review.Posting.Transaction)
		resp.Loyalty = &posting
	}
	return resp
}

func AdminReceiptApprove(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receiptID, err := validators.ParseUUIDParam(r, "receiptId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload approveReceiptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		review, err := svc.ApproveReceipt(r.Context(), receiptID, operatorID, payload.Points)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReceiptReviewResponse(review))
	}
}

func AdminReceiptReject(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receiptID, err := validators.ParseUUIDParam(r, "receiptId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload rejectReceiptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		review, err := svc.RejectReceipt(r.Context(), receiptID, operatorID, validators.SanitizeString(payload.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReceiptReviewResponse(review))
	}
}

func AdminReceiptGet(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receiptID, err := validators.ParseUUIDParam(r, "receiptId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.GetReceipt(r.Context(), receiptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReceiptResponse(*receipt))
	}
}
