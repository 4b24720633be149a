package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	"github.com/angelmondragon/blendpoint-backend/api/validators"
	"github.com/angelmondragon/blendpoint-backend/internal/promotions"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

type createPromotionRequest struct {
	Code               string          `json:"code" validate:"required,max=64"`
	Description        string          `json:"description" validate:"max=500"`
	DiscountType       string          `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue      decimal.Decimal `json:"discount_value" validate:"gt=0"`
	MinimumOrderAmount decimal.Decimal `json:"minimum_order_amount" validate:"gte=0"`
	ValidFrom          *time.Time      `json:"valid_from"`
	ValidTo            *time.Time      `json:"valid_to"`
	UsageLimit         *int            `json:"usage_limit" validate:"omitempty,min=1"`
	UsagePerUserLimit  *int            `json:"usage_per_user_limit" validate:"omitempty,min=1"`
	StoreIDs           []uuid.UUID     `json:"store_ids"`
	CategoryIDs        []uuid.UUID     `json:"category_ids"`
	ProductIDs         []uuid.UUID     `json:"product_ids"`
}

func AdminPromotionCreate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createPromotionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseDiscountType(payload.DiscountType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount_type"))
			return
		}
		promo, err := svc.Create(r.Context(), promotions.CreateInput{
			Code:               payload.Code,
			Description:        validators.SanitizeString(payload.Description, 500),
			DiscountType:       kind,
			DiscountValue:      payload.DiscountValue,
			MinimumOrderAmount: payload.MinimumOrderAmount,
			ValidFrom:          payload.ValidFrom,
			ValidTo:            payload.ValidTo,
			UsageLimit:         payload.UsageLimit,
			UsagePerUserLimit:  payload.UsagePerUserLimit,
			StoreIDs:           payload.StoreIDs,
			CategoryIDs:        payload.CategoryIDs,
			ProductIDs:         payload.ProductIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPromotionResponse(*promo))
	}
}

func AdminPromotionGet(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		promo, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPromotionResponse(*promo))
	}
}

func AdminPromotionDeactivate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "is_active": false})
	}
}

func AdminPromotionUsages(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListUsages(r.Context(), id, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page.Items, page.NextCursor, newPromotionUsageResponse))
	}
}
