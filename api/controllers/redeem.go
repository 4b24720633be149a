package controllers

import (
	"net/http"

	"github.com/angelmondragon/blendpoint-backend/api/responses"
	"github.com/angelmondragon/blendpoint-backend/api/validators"
	"github.com/angelmondragon/blendpoint-backend/internal/redemption"
	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

type redeemRequest struct {
	Code string `json:"code" validate:"required,max=128"`
}

type redeemResponse struct {
	Code   qrCodeResponse      `json:"code"`
	Scan   qrScanResponse      `json:"scan"`
	Points int64               `json:"points_awarded"`
	Wallet walletResponse      `json:"wallet"`
	Entry  transactionResponse `json:"transaction"`
}

func Redeem(svc redemption.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload redeemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Redeem(r.Context(), payload.Code, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redeemResponse{
			Code:   newQRCodeResponse(result.Code),
			Scan:   newQRScanResponse(result.Scan),
			Points: result.Scan.PointsAwarded,
			Wallet: newWalletResponse(result.Wallet),
			Entry:  newTransactionResponse(result.Transaction),
		})
	}
}
