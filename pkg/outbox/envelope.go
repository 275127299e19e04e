package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID  *uuid.UUID `json:"userId,omitempty"`
	StoreID *uuid.UUID `json:"storeId,omitempty"`
	Role    string     `json:"role,omitempty"`
	Source  string     `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events and published as the message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// OrderEvent is the data of order.* events.
type OrderEvent struct {
	OrderID            uuid.UUID  `json:"orderId"`
	StoreID            uuid.UUID  `json:"storeId"`
	Platform           string     `json:"platform"`
	ExternalOrderID    string     `json:"externalOrderId"`
	Status             string     `json:"status"`
	PreviousStatus     string     `json:"previousStatus,omitempty"`
	AssignedProviderID *uuid.UUID `json:"assignedProviderId,omitempty"`
	TotalCents         int64      `json:"totalCents"`
	Reason             string     `json:"reason,omitempty"`
}

// JobEvent is the data of fulfillment.* events.
type JobEvent struct {
	JobID       uuid.UUID  `json:"jobId"`
	OrderID     uuid.UUID  `json:"orderId"`
	OrderItemID uuid.UUID  `json:"orderItemId"`
	ProviderID  *uuid.UUID `json:"providerId,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"lastError,omitempty"`
}

// QuotaEvent is the data of subscription.quota_reconciled.
type QuotaEvent struct {
	SubscriptionID    uuid.UUID `json:"subscriptionId"`
	StoreID           uuid.UUID `json:"storeId"`
	OrdersThisMonth   int64     `json:"ordersThisMonth"`
	ProductsCount     int64     `json:"productsCount"`
	StorageBytes      int64     `json:"storageBytes"`
	APICallsThisMonth int64     `json:"apiCallsThisMonth"`
}
