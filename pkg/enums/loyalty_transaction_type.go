package enums

import "fmt"

// LoyaltyTransactionType tags a loyalty ledger row.
type LoyaltyTransactionType string

const (
	LoyaltyTransactionEarned   LoyaltyTransactionType = "earned"
	LoyaltyTransactionRedeemed LoyaltyTransactionType = "redeemed"
	LoyaltyTransactionAdjusted LoyaltyTransactionType = "adjusted"
)

var validLoyaltyTransactionTypes = []LoyaltyTransactionType{
	LoyaltyTransactionEarned,
	LoyaltyTransactionRedeemed,
	LoyaltyTransactionAdjusted,
}

// String implements fmt.Stringer.
func (l LoyaltyTransactionType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoyaltyTransactionType.
func (l LoyaltyTransactionType) IsValid() bool {
	for _, candidate := range validLoyaltyTransactionTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLoyaltyTransactionType converts raw input into a LoyaltyTransactionType.
func ParseLoyaltyTransactionType(value string) (LoyaltyTransactionType, error) {
	for _, candidate := range validLoyaltyTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty transaction type %q", value)
}

// AllowsDebit reports whether rows of this type may carry a negative delta.
func (l LoyaltyTransactionType) AllowsDebit() bool {
	return l == LoyaltyTransactionRedeemed || l == LoyaltyTransactionAdjusted
}
