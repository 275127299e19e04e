package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateFulfillmentJob OutboxAggregateType = "fulfillment_job"
	AggregateSubscription   OutboxAggregateType = "subscription"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateFulfillmentJob,
	AggregateSubscription,
}

func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType is the event_type stored on each outbox row and forwarded as a Pub/Sub attribute.
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order.created"
	EventOrderUpdated         OutboxEventType = "order.updated"
	EventOrderCancelled       OutboxEventType = "order.cancelled"
	EventOrderShipped         OutboxEventType = "order.shipped"
	EventOrderStatusChanged   OutboxEventType = "order.status_changed"
	EventOrderProviderChanged OutboxEventType = "order.provider_assigned"
	EventOrderOrphaned        OutboxEventType = "order.orphaned"
	EventJobSubmitted         OutboxEventType = "fulfillment.job_submitted"
	EventJobExhausted         OutboxEventType = "fulfillment.job_exhausted"
	EventQuotaReconciled      OutboxEventType = "subscription.quota_reconciled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderUpdated,
	EventOrderCancelled,
	EventOrderShipped,
	EventOrderStatusChanged,
	EventOrderProviderChanged,
	EventOrderOrphaned,
	EventJobSubmitted,
	EventJobExhausted,
	EventQuotaReconciled,
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
