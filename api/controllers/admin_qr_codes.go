package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	"github.com/angelmondragon/blendpoint-backend/api/validators"
	"github.com/angelmondragon/blendpoint-backend/internal/redemption"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

type createQRCodeRequest struct {
	Code               string     `json:"code" validate:"required,max=128"`
	Name               string     `json:"name" validate:"required,max=255"`
	Points             int64      `json:"points" validate:"gt=0"`
	AvailableFrom      *time.Time `json:"available_from"`
	ExpiresAt          *time.Time `json:"expires_at"`
	MaxTotalUses       *int       `json:"max_total_uses" validate:"omitempty,min=1"`
	MaxUsesPerCustomer *int       `json:"max_uses_per_customer" validate:"omitempty,min=1"`
}

func AdminQRCodeCreate(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createQRCodeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code, err := svc.CreateCode(r.Context(), redemption.CreateCodeInput{
			Code:               payload.Code,
			Name:               validators.SanitizeString(payload.Name, 255),
			Points:             payload.Points,
			AvailableFrom:      payload.AvailableFrom,
			ExpiresAt:          payload.ExpiresAt,
			MaxTotalUses:       payload.MaxTotalUses,
			MaxUsesPerCustomer: payload.MaxUsesPerCustomer,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newQRCodeResponse(*code))
	}
}

func AdminQRCodeGet(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "codeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code, err := svc.GetCode(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newQRCodeResponse(*code))
	}
}

func AdminQRCodeDeactivate(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "codeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeactivateCode(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "is_active": false})
	}
}

func AdminQRCodeScans(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "codeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListScans(r.Context(), id, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page.Items, page.NextCursor, newQRScanResponse))
	}
}
