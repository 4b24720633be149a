package controllers

import (
	"net/http"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	"github.com/angelmondragon/blendpoint-backend/api/validators"
	"github.com/angelmondragon/blendpoint-backend/internal/pricing"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
	"github.com/angelmondragon/blendpoint-backend/pkg/types"
)

// PricingQuote prices a configuration without touching any cart.
func PricingQuote(calc pricing.Calculator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload types.MixConfiguration
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := calc.Calculate(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
