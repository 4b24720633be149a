package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/pkg/enums"
)

// ModifierSelection picks a level for one modifier. Level 0 is a valid no-op.
// Bounds are checked by the price calculator against the modifier's
// max_level, so out-of-range levels report INVALID_CONFIGURATION.
type ModifierSelection struct {
	ModifierID uuid.UUID `json:"modifier_id"`
	Level      int       `json:"level"`
}

// MixConfiguration is the priceable shape shared by every cart item kind.
// BasePrice is only honoured when BaseProductID is nil.
type MixConfiguration struct {
	BaseProductID *uuid.UUID          `json:"base_product_id,omitempty"`
	BasePrice     *decimal.Decimal    `json:"base_price,omitempty"`
	Modifiers     []ModifierSelection `json:"modifiers,omitempty"`
	Extras        []uuid.UUID         `json:"extras,omitempty"`
}

// BreakdownLine is one itemized contribution to a computed price.
type BreakdownLine struct {
	Label    string                  `json:"label"`
	Amount   decimal.Decimal         `json:"amount"`
	Type     enums.BreakdownLineType `json:"type"`
	SourceID *uuid.UUID              `json:"source_id,omitempty"`
	Level    *int                    `json:"level,omitempty"`
}

// ItemSnapshot freezes the configuration and breakdown a cart line was priced from.
// It is audit data only; totals never re-evaluate it.
type ItemSnapshot struct {
	Configuration MixConfiguration `json:"configuration"`
	Breakdown     []BreakdownLine  `json:"breakdown"`
	ProductIDs    []uuid.UUID      `json:"product_ids,omitempty"`
	CategoryIDs   []uuid.UUID      `json:"category_ids,omitempty"`
}

// OrderLine is a cart line frozen onto an order.
type OrderLine struct {
	Kind        enums.CartItemKind `json:"kind"`
	ReferenceID *uuid.UUID         `json:"reference_id,omitempty"`
	Label       string             `json:"label"`
	Quantity    int                `json:"quantity"`
	UnitPrice   decimal.Decimal    `json:"unit_price"`
	LineTotal   decimal.Decimal    `json:"line_total"`
	Snapshot    ItemSnapshot       `json:"snapshot"`
}
