package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	"github.com/angelmondragon/blendpoint-backend/api/validators"
	cartsvc "github.com/angelmondragon/blendpoint-backend/internal/cart"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

type initCartRequest struct {
	StoreID uuid.UUID `json:"store_id" validate:"required"`
}

// CartInit returns the owner's active cart for the store, creating one when
// none exists.
func CartInit(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload initCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner := cartOwner(r)

		existing, err := svc.GetActive(r.Context(), payload.StoreID, owner)
		switch {
		case err == nil:
			responses.WriteSuccess(w, newCartResponse(existing))
			return
		case !pkgerrors.HasCode(err, pkgerrors.CodeCartNotFound):
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Init(r.Context(), payload.StoreID, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(created))
	}
}

func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.Get(r.Context(), cartID, cartOwner(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

// addItemRequest accepts both body shapes. The unified shape carries
// item_type; the legacy shape is a flat product_id with optional addons.
type addItemRequest struct {
	ItemType      string                  `json:"item_type"`
	ItemID        *uuid.UUID              `json:"item_id"`
	Configuration *types.MixConfiguration `json:"configuration" validate:"omitempty"`

	ProductID *uuid.UUID    `json:"product_id"`
	Addons    *legacyAddons `json:"addons" validate:"omitempty"`

	Quantity int `json:"quantity" validate:"required,min=1,max=999"`
}

type legacyAddons struct {
	Modifiers []types.ModifierSelection `json:"modifiers"`
	Extras    []uuid.UUID               `json:"extras"`
}

func (req addItemRequest) toSpec() (cartsvc.ItemSpec, error) {
	if req.ItemType == "" {
		return req.legacySpec()
	}
	if req.ProductID != nil || req.Addons != nil {
		return cartsvc.ItemSpec{}, pkgerrors.New(pkgerrors.CodeValidation, "legacy fields cannot be combined with item_type").WithDetails(map[string]any{"field": "item_type"})
	}

	kind, err := enums.ParseCartItemKind(req.ItemType)
	if err != nil {
		return cartsvc.ItemSpec{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item_type").WithDetails(map[string]any{"field": "item_type"})
	}
	spec := cartsvc.ItemSpec{Kind: kind, Quantity: req.Quantity}
	if req.Configuration != nil {
		spec.Configuration = *req.Configuration
	}
	switch kind {
	case enums.CartItemKindProduct:
		spec.ProductID = req.ItemID
	case enums.CartItemKindCreatorMix:
		spec.CreatorMixID = req.ItemID
	case enums.CartItemKindCustomMix:
		if req.ItemID != nil && spec.Configuration.BaseProductID == nil {
			spec.Configuration.BaseProductID = req.ItemID
		}
	}
	return spec, nil
}

func (req addItemRequest) legacySpec() (cartsvc.ItemSpec, error) {
	if req.ProductID == nil {
		return cartsvc.ItemSpec{}, pkgerrors.New(pkgerrors.CodeValidation, "item_type or product_id is required").WithDetails(map[string]any{"field": "product_id"})
	}
	if req.ItemID != nil || req.Configuration != nil {
		return cartsvc.ItemSpec{}, pkgerrors.New(pkgerrors.CodeValidation, "item_id and configuration require item_type").WithDetails(map[string]any{"field": "item_type"})
	}
	spec := cartsvc.ItemSpec{
		Kind:      enums.CartItemKindProduct,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}
	if req.Addons != nil {
		spec.Configuration.Modifiers = req.Addons.Modifiers
		spec.Configuration.Extras = req.Addons.Extras
	}
	return spec, nil
}

func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		spec, err := payload.toSpec()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.AddItem(r.Context(), cartID, cartOwner(r), spec)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(cart))
	}
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=999"`
}

func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.UpdateItemQuantity(r.Context(), cartID, itemID, cartOwner(r), payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.RemoveItem(r.Context(), cartID, itemID, cartOwner(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

type applyPromotionRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func CartApplyPromotion(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload applyPromotionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.ApplyPromotion(r.Context(), cartID, cartOwner(r), payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartRemovePromotion(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.RemovePromotion(r.Context(), cartID, cartOwner(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartAbandon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.Abandon(r.Context(), cartID, cartOwner(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}
