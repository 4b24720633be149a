package enums

import "fmt"

// CartItemKind tags the payload variant a cart line was priced from.
type CartItemKind string

const (
	CartItemKindProduct    CartItemKind = "product"
	CartItemKindCustomMix  CartItemKind = "custom_mix"
	CartItemKindCreatorMix CartItemKind = "creator_mix"
)

var validCartItemKinds = []CartItemKind{
	CartItemKindProduct,
	CartItemKindCustomMix,
	CartItemKindCreatorMix,
}

// String implements fmt.Stringer.
func (c CartItemKind) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartItemKind.
func (c CartItemKind) IsValid() bool {
	for _, candidate := range validCartItemKinds {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCartItemKind converts raw input into a CartItemKind.
func ParseCartItemKind(value string) (CartItemKind, error) {
	for _, candidate := range validCartItemKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart item kind %q", value)
}
