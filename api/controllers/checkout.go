package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	"github.com/angelmondragon/blendpoint-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/blendpoint-backend/internal/checkout"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

type checkoutRequest struct {
	TaxRate *decimal.Decimal `json:"tax_rate"`
}

type checkoutResponse struct {
	Order   orderResponse    `json:"order"`
	Loyalty *postingResponse `json:"loyalty,omitempty"`
}

// CartCheckout freezes the cart into an order. The body is optional; an
// explicit tax_rate overrides the configured default.
func CartCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkoutRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Checkout(r.Context(), cartID, cartOwner(r), checkoutsvc.Input{TaxRate: payload.TaxRate})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := checkoutResponse{Order: newOrderResponse(result.Order)}
		if result.Posting != nil {
			posting := newPostingResponse(result.Posting.Wallet, result.Posting.Transaction)
			resp.Loyalty = &posting
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func OrderList(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListOrders(r.Context(), customerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page.Items, page.NextCursor, newOrderResponse))
	}
}

func OrderGet(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(*order))
	}
}
