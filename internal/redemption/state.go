package redemption

import (
	"time"

	"github.com/angelmondragon/blendpoint-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/blendpoint-backend/pkg/errors"
)

// checkWindow covers the states decided by the code row alone, in order:
// inactive, not yet available, expired.
func checkWindow(code *models.QRCode, now time.Time) error {
	if !code.IsActive {
		return pkgerrors.New(pkgerrors.CodeQRCodeInactive, "this code is no longer active")
	}
	if code.AvailableFrom != nil && now.Before(*code.AvailableFrom) {
		return pkgerrors.New(pkgerrors.CodeQRCodeNotAvailable, "this code is not available yet").
			WithDetails(map[string]any{"available_from": code.AvailableFrom.UTC()})
	}
	if code.ExpiresAt != nil && !now.Before(*code.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeQRCodeExpired, "this code has expired")
	}
	return nil
}

func checkCustomerLimit(code *models.QRCode, prior int64) error {
	if code.MaxUsesPerCustomer != nil && prior >= int64(*code.MaxUsesPerCustomer) {
		return customerLimitReached(*code.MaxUsesPerCustomer)
	}
	return nil
}

func checkTotalLimit(code *models.QRCode) error {
	if code.MaxTotalUses != nil && code.TotalUses >= *code.MaxTotalUses {
		return totalLimitReached()
	}
	return nil
}

func customerLimitReached(limit int) error {
	return pkgerrors.New(pkgerrors.CodeQRCodeLimitExceeded, "you have already redeemed this code").
		WithDetails(map[string]any{"max_uses_per_customer": limit})
}

func totalLimitReached() error {
	return pkgerrors.New(pkgerrors.CodeQRCodeTotalLimitReached, "this code has reached its redemption limit")
}
