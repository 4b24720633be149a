package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/internal/pricing"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

const customMixLabel = "Custom mix"

// resolved is a priced spec ready to become a CartItem.
type resolved struct {
	kind        enums.CartItemKind
	referenceID *uuid.UUID
	label       string
	config      types.MixConfiguration
	price       pricing.Result
}

// resolve turns a spec into a concrete configuration and prices it exactly once.
func (s *service) resolve(ctx context.Context, spec ItemSpec) (*resolved, error) {
	out := &resolved{kind: spec.Kind}

	switch spec.Kind {
	case enums.CartItemKindProduct:
		product, err := s.primaryProduct(ctx, *spec.ProductID)
		if err != nil {
			return nil, err
		}
		out.referenceID = &product.ID
		out.label = product.Name
		out.config = types.MixConfiguration{
			BaseProductID: &product.ID,
			Modifiers:     spec.Configuration.Modifiers,
			Extras:        spec.Configuration.Extras,
		}

	case enums.CartItemKindCustomMix:
		out.label = customMixLabel
		out.config = spec.Configuration
		if spec.Configuration.BaseProductID != nil {
			if _, err := s.primaryProduct(ctx, *spec.Configuration.BaseProductID); err != nil {
				return nil, err
			}
			out.config.BasePrice = nil
		}

	case enums.CartItemKindCreatorMix:
		mix, err := s.catalog.GetCreatorMix(ctx, *spec.CreatorMixID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeInvalidConfiguration, "creator mix not found").
					WithDetails(map[string]any{"field": "item_id", "creator_mix_id": *spec.CreatorMixID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load creator mix")
		}
		if !mix.IsPublished {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfiguration, "creator mix is not published").
				WithDetails(map[string]any{"creator_mix_id": mix.ID})
		}
		if mix.Configuration.BaseProductID != nil {
			if _, err := s.primaryProduct(ctx, *mix.Configuration.BaseProductID); err != nil {
				return nil, err
			}
		}
		out.referenceID = &mix.ID
		out.label = mix.Name
		out.config = mix.Configuration
	}

	price, err := s.calc.Calculate(ctx, out.config)
	if err != nil {
		return nil, err
	}
	out.price = price
	return out, nil
}

// primaryProduct loads the item's main product. Disabled products surface as
// PRODUCT_INACTIVE; the calculator reports anything else it references.
func (s *service) primaryProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidConfiguration, "product not found").
				WithDetails(map[string]any{"field": "product_id", "product_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeProductInactive, "product is not available").
			WithDetails(map[string]any{"product_id": id})
	}
	return product, nil
}

func (r *resolved) item(cartID uuid.UUID, quantity int) models.CartItem {
	return models.CartItem{
		CartID:      cartID,
		Kind:        r.kind,
		ReferenceID: r.referenceID,
		Label:       r.label,
		Quantity:    quantity,
		UnitPrice:   r.price.Total,
		Snapshot: types.ItemSnapshot{
			Configuration: r.config,
			Breakdown:     r.price.Breakdown,
			ProductIDs:    r.price.ProductIDs,
			CategoryIDs:   r.price.CategoryIDs,
		},
	}
}
