package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/blendpoint-backend/internal/catalog"
	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

const currencyPlaces = 2

// Result is a computed price plus the lines it was built from.
type Result struct {
	Total       decimal.Decimal       `json:"total"`
	Breakdown   []types.BreakdownLine `json:"breakdown"`
	ProductIDs  []uuid.UUID           `json:"product_ids,omitempty"`
	CategoryIDs []uuid.UUID           `json:"category_ids,omitempty"`
}

// Calculator prices a mix configuration against the catalog.
type Calculator interface {
	Calculate(ctx context.Context, cfg types.MixConfiguration) (Result, error)
}

type calculator struct {
	catalog catalog.Reader
}

// NewCalculator builds a calculator over the provided catalog reader.
func NewCalculator(reader catalog.Reader) (Calculator, error) {
	if reader == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	return &calculator{catalog: reader}, nil
}

// Calculate resolves every reference in cfg and sums the line amounts.
// Line amounts are kept at full precision; only the total is rounded.
func (c *calculator) Calculate(ctx context.Context, cfg types.MixConfiguration) (Result, error) {
	acc := newAccumulator()

	if err := c.addBase(ctx, cfg, acc); err != nil {
		return Result{}, err
	}

	seen := make(map[uuid.UUID]struct{}, len(cfg.Modifiers))
	for i, sel := range cfg.Modifiers {
		if _, dup := seen[sel.ModifierID]; dup {
			return Result{}, invalidConfiguration(fmt.Sprintf("modifier %s selected more than once", sel.ModifierID), map[string]any{
				"field":       fmt.Sprintf("modifiers[%d].modifier_id", i),
				"modifier_id": sel.ModifierID,
			})
		}
		seen[sel.ModifierID] = struct{}{}
		if err := c.addModifier(ctx, i, sel, acc); err != nil {
			return Result{}, err
		}
	}

	for i, extraID := range cfg.Extras {
		if err := c.addExtra(ctx, i, extraID, acc); err != nil {
			return Result{}, err
		}
	}

	return acc.result(), nil
}

func (c *calculator) addBase(ctx context.Context, cfg types.MixConfiguration, acc *accumulator) error {
	if cfg.BaseProductID == nil {
		if cfg.BasePrice == nil {
			return invalidConfiguration("base product or base price is required", map[string]any{"field": "base_product_id"})
		}
		if cfg.BasePrice.IsNegative() {
			return invalidConfiguration("base price must not be negative", map[string]any{
				"field": "base_price",
				"value": cfg.BasePrice.String(),
			})
		}
		acc.add(types.BreakdownLine{Label: "Base", Amount: *cfg.BasePrice, Type: enums.BreakdownLineBase})
		return nil
	}

	product, err := c.activeProduct(ctx, *cfg.BaseProductID, "base_product_id")
	if err != nil {
		return err
	}
	acc.addProduct(product.ID, product.CategoryID)
	acc.add(types.BreakdownLine{
		Label:    product.Name,
		Amount:   product.Price,
		Type:     enums.BreakdownLineBase,
		SourceID: uuidPtr(product.ID),
	})
	return nil
}

func (c *calculator) addModifier(ctx context.Context, index int, sel types.ModifierSelection, acc *accumulator) error {
	field := fmt.Sprintf("modifiers[%d]", index)
	modifier, err := c.catalog.GetModifier(ctx, sel.ModifierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidConfiguration(fmt.Sprintf("modifier %s not found", sel.ModifierID), map[string]any{
				"field":       field + ".modifier_id",
				"modifier_id": sel.ModifierID,
			})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load modifier")
	}
	if !modifier.IsActive {
		return invalidConfiguration(fmt.Sprintf("modifier %s is not active", modifier.Name), map[string]any{
			"field":       field + ".modifier_id",
			"modifier_id": modifier.ID,
		})
	}
	if sel.Level < 0 || sel.Level > modifier.MaxLevel {
		return invalidConfiguration(
			fmt.Sprintf("modifier %s level %d is outside 0..%d", modifier.Name, sel.Level, modifier.MaxLevel),
			map[string]any{
				"field":       field + ".level",
				"modifier_id": modifier.ID,
				"level":       sel.Level,
				"min_level":   0,
				"max_level":   modifier.MaxLevel,
			},
		)
	}

	level := sel.Level
	acc.add(types.BreakdownLine{
		Label:    fmt.Sprintf("%s x%d", modifier.Name, level),
		Amount:   modifier.Price.Mul(decimal.NewFromInt(int64(level))),
		Type:     enums.BreakdownLineModifier,
		SourceID: uuidPtr(modifier.ID),
		Level:    &level,
	})
	return nil
}

func (c *calculator) addExtra(ctx context.Context, index int, id uuid.UUID, acc *accumulator) error {
	product, err := c.activeProduct(ctx, id, fmt.Sprintf("extras[%d]", index))
	if err != nil {
		return err
	}
	acc.addProduct(product.ID, product.CategoryID)
	acc.add(types.BreakdownLine{
		Label:    product.Name,
		Amount:   product.Price,
		Type:     enums.BreakdownLineExtra,
		SourceID: uuidPtr(product.ID),
	})
	return nil
}

func (c *calculator) activeProduct(ctx context.Context, id uuid.UUID, field string) (*models.Product, error) {
	product, err := c.catalog.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidConfiguration(fmt.Sprintf("product %s not found", id), map[string]any{
				"field":      field,
				"product_id": id,
			})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, invalidConfiguration(fmt.Sprintf("product %s is not active", product.Name), map[string]any{
			"field":      field,
			"product_id": id,
		})
	}
	return product, nil
}

func invalidConfiguration(message string, details map[string]any) error {
	return pkgerrors.New(pkgerrors.CodeInvalidConfiguration, message).WithDetails(details)
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
