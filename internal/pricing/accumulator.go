package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

type accumulator struct {
	sum        decimal.Decimal
	lines      []types.BreakdownLine
	products   []uuid.UUID
	categories []uuid.UUID
	seenCat    map[uuid.UUID]struct{}
	seenProd   map[uuid.UUID]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{
		sum:      decimal.Zero,
		seenCat:  map[uuid.UUID]struct{}{},
		seenProd: map[uuid.UUID]struct{}{},
	}
}

func (a *accumulator) add(line types.BreakdownLine) {
	a.sum = a.sum.Add(line.Amount)
	a.lines = append(a.lines, line)
}

func (a *accumulator) addProduct(id uuid.UUID, category *uuid.UUID) {
	if _, ok := a.seenProd[id]; !ok {
		a.seenProd[id] = struct{}{}
		a.products = append(a.products, id)
	}
	if category == nil {
		return
	}
	if _, ok := a.seenCat[*category]; !ok {
		a.seenCat[*category] = struct{}{}
		a.categories = append(a.categories, *category)
	}
}

func (a *accumulator) result() Result {
	return Result{
		Total:       a.sum.Round(currencyPlaces),
		Breakdown:   a.lines,
		ProductIDs:  a.products,
		CategoryIDs: a.categories,
	}
}
