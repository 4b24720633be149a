package enums

import "fmt"

// BreakdownLineType labels a price breakdown line.
type BreakdownLineType string

const (
	BreakdownLineBase     BreakdownLineType = "base"
	BreakdownLineModifier BreakdownLineType = "modifier"
	BreakdownLineExtra    BreakdownLineType = "extra"
)

var validBreakdownLineTypes = []BreakdownLineType{
	BreakdownLineBase,
	BreakdownLineModifier,
	BreakdownLineExtra,
}

// String implements fmt.Stringer.
func (b BreakdownLineType) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BreakdownLineType.
func (b BreakdownLineType) IsValid() bool {
	for _, candidate := range validBreakdownLineTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBreakdownLineType converts raw input into a BreakdownLineType.
func ParseBreakdownLineType(value string) (BreakdownLineType, error) {
	for _, candidate := range validBreakdownLineTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid breakdown line type %q", value)
}
