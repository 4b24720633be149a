package enums

import "fmt"

// LoyaltyReferenceType names the kind of record a ledger row points back to.
type LoyaltyReferenceType string

const (
	LoyaltyReferenceOrder   LoyaltyReferenceType = "order"
	LoyaltyReferenceQRCode  LoyaltyReferenceType = "qr_code"
	LoyaltyReferenceReceipt LoyaltyReferenceType = "receipt"
	LoyaltyReferenceManual  LoyaltyReferenceType = "manual"
)

var validLoyaltyReferenceTypes = []LoyaltyReferenceType{
	LoyaltyReferenceOrder,
	LoyaltyReferenceQRCode,
	LoyaltyReferenceReceipt,
	LoyaltyReferenceManual,
}

// String implements fmt.Stringer.
func (l LoyaltyReferenceType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoyaltyReferenceType.
func (l LoyaltyReferenceType) IsValid() bool {
	for _, candidate := range validLoyaltyReferenceTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLoyaltyReferenceType converts raw input into a LoyaltyReferenceType.
func ParseLoyaltyReferenceType(value string) (LoyaltyReferenceType, error) {
	for _, candidate := range validLoyaltyReferenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty reference type %q", value)
}
