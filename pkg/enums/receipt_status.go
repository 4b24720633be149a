package enums

import "fmt"

// ReceiptStatus is the review state of a submitted receipt.
type ReceiptStatus string

const (
	ReceiptStatusPending  ReceiptStatus = "pending"
	ReceiptStatusApproved ReceiptStatus = "approved"
	ReceiptStatusRejected ReceiptStatus = "rejected"
)

var validReceiptStatuses = []ReceiptStatus{
	ReceiptStatusPending,
	ReceiptStatusApproved,
	ReceiptStatusRejected,
}

// String implements fmt.Stringer.
func (r ReceiptStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReceiptStatus.
func (r ReceiptStatus) IsValid() bool {
	for _, candidate := range validReceiptStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReceiptStatus converts raw input into a ReceiptStatus.
func ParseReceiptStatus(value string) (ReceiptStatus, error) {
	for _, candidate := range validReceiptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receipt status %q", value)
}
