package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/api/middleware"
	"github.com/angelmondragon/blendpoint-backend/api/responses"
	"github.com/angelmondragon/blendpoint-backend/api/validators"
	"github.com/angelmondragon/blendpoint-backend/internal/promotions"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

type validatePromotionRequest struct {
	Code        string          `json:"code" validate:"required,max=64"`
	StoreID     uuid.UUID       `json:"store_id" validate:"required"`
	Subtotal    decimal.Decimal `json:"subtotal" validate:"gte=0"`
	CategoryIDs []uuid.UUID     `json:"category_ids"`
	ProductIDs  []uuid.UUID     `json:"product_ids"`
}

type promotionQuoteResponse struct {
	Valid     bool              `json:"valid"`
	Discount  decimal.Decimal   `json:"discount"`
	Promotion promotionResponse `json:"promotion"`
}

// PromotionValidate checks a code against a hypothetical order without
// recording any usage.
func PromotionValidate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload validatePromotionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.ValidateAndPrice(r.Context(), payload.Code, promotions.OrderContext{
			Subtotal:    payload.Subtotal,
			CustomerID:  middleware.CustomerIDFromContext(r.Context()),
			StoreID:     payload.StoreID,
			CategoryIDs: payload.CategoryIDs,
			ProductIDs:  payload.ProductIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promotionQuoteResponse{
			Valid:     true,
			Discount:  quote.Discount,
			Promotion: newPromotionResponse(quote.Promotion),
		})
	}
}
