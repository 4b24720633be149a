package cart

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

// MaxItemQuantity caps a single cart line so line and cart totals stay
// within the numeric(12,2) money columns.
const MaxItemQuantity = 999

func validateQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxItemQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", MaxItemQuantity)).
			WithDetails(map[string]any{"field": "quantity", "value": quantity, "max": MaxItemQuantity})
	}
	return nil
}

// ItemSpec is the single internal shape every add-item request is normalized into.
//
//   - product: ProductID plus optional modifier and extra selections.
//   - custom_mix: an inline Configuration; only kind allowed a raw base price.
//   - creator_mix: CreatorMixID; the stored configuration is used as published.
type ItemSpec struct {
	Kind          enums.CartItemKind
	ProductID     *uuid.UUID
	CreatorMixID  *uuid.UUID
	Configuration types.MixConfiguration
	Quantity      int
}

func (s ItemSpec) validate() error {
	if !s.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown item kind").WithDetails(map[string]any{"field": "item_type", "value": s.Kind})
	}
	if err := validateQuantity(s.Quantity); err != nil {
		return err
	}
	switch s.Kind {
	case enums.CartItemKindProduct:
		if s.ProductID == nil || *s.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required").WithDetails(map[string]any{"field": "product_id"})
		}
		if s.Configuration.BasePrice != nil {
			return pkgerrors.New(pkgerrors.CodeInvalidConfiguration, "base price is only accepted for custom mixes").WithDetails(map[string]any{"field": "base_price"})
		}
	case enums.CartItemKindCreatorMix:
		if s.CreatorMixID == nil || *s.CreatorMixID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "creator mix id is required").WithDetails(map[string]any{"field": "item_id"})
		}
	}
	return nil
}
