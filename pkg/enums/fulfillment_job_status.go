package enums

import "fmt"

// FulfillmentJobStatus tracks provider-side production of one order item.
type FulfillmentJobStatus string

const (
	JobStatusPending      FulfillmentJobStatus = "pending"
	JobStatusSubmitted    FulfillmentJobStatus = "submitted"
	JobStatusInProduction FulfillmentJobStatus = "in_production"
	JobStatusCompleted    FulfillmentJobStatus = "completed"
	JobStatusFailed       FulfillmentJobStatus = "failed"
	JobStatusCancelled    FulfillmentJobStatus = "cancelled"
)

var validFulfillmentJobStatuses = []FulfillmentJobStatus{
	JobStatusPending,
	JobStatusSubmitted,
	JobStatusInProduction,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// String implements fmt.Stringer.
func (v FulfillmentJobStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known FulfillmentJobStatus.
func (v FulfillmentJobStatus) IsValid() bool {
	for _, candidate := range validFulfillmentJobStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseFulfillmentJobStatus converts raw input into a FulfillmentJobStatus.
func ParseFulfillmentJobStatus(value string) (FulfillmentJobStatus, error) {
	for _, candidate := range validFulfillmentJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment job status %q", value)
}
