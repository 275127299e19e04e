package enums

import "fmt"

// ItemFulfillmentStatus mirrors order transitions on each line item.
type ItemFulfillmentStatus string

const (
	ItemFulfillmentPending    ItemFulfillmentStatus = "pending"
	ItemFulfillmentProcessing ItemFulfillmentStatus = "processing"
	ItemFulfillmentFulfilled  ItemFulfillmentStatus = "fulfilled"
	ItemFulfillmentShipped    ItemFulfillmentStatus = "shipped"
	ItemFulfillmentCancelled  ItemFulfillmentStatus = "cancelled"
)

var validItemFulfillmentStatuses = []ItemFulfillmentStatus{
	ItemFulfillmentPending,
	ItemFulfillmentProcessing,
	ItemFulfillmentFulfilled,
	ItemFulfillmentShipped,
	ItemFulfillmentCancelled,
}

// String implements fmt.Stringer.
func (v ItemFulfillmentStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ItemFulfillmentStatus.
func (v ItemFulfillmentStatus) IsValid() bool {
	for _, candidate := range validItemFulfillmentStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseItemFulfillmentStatus converts raw input into a ItemFulfillmentStatus.
func ParseItemFulfillmentStatus(value string) (ItemFulfillmentStatus, error) {
	for _, candidate := range validItemFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item fulfillment status %q", value)
}
