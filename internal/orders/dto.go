package orders

import (
	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/types"
)

// Mode distinguishes at-least-once webhook deliveries from explicit create calls.
type Mode int

const (
	// ModeWebhook updates an existing order in place when the natural key matches.
	ModeWebhook Mode = iota + 1
	// ModeCreate rejects a natural-key match with DUPLICATE_ORDER.
	ModeCreate
)

func (m Mode) String() string {
	switch m {
	case ModeWebhook:
		return "webhook"
	case ModeCreate:
		return "create"
	default:
		return "unknown"
	}
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SubmissionItem is one line of an incoming order. ProductID is nil when the line
// could not be matched to a catalog product.
type SubmissionItem struct {
	ProductID         *uuid.UUID `json:"product_id,omitempty"`
	ExternalProductID string     `json:"external_product_id,omitempty"`
	VariantID         string     `json:"variant_id,omitempty"`
	DesignID          *uuid.UUID `json:"design_id,omitempty"`
	ProductType       string     `json:"product_type,omitempty"`
	Name              string     `json:"name"`
	SKU               string     `json:"sku,omitempty"`
	Quantity          int        `json:"quantity"`
	UnitPriceCents    int64      `json:"unit_price_cents"`
}

// Submission is the platform-neutral order shape every entry point produces.
type Submission struct {
	StoreID           uuid.UUID        `json:"store_id"`
	Platform          enums.Platform   `json:"platform"`
	ExternalOrderID   string           `json:"external_order_id"`
	OrderNumber       string           `json:"order_number,omitempty"`
	Customer          Customer         `json:"customer"`
	ShippingAddress   types.Address    `json:"shipping_address"`
	Items             []SubmissionItem `json:"items"`
	ShippingCents     *int64           `json:"shipping_cents,omitempty"`
	TaxCents          *int64           `json:"tax_cents,omitempty"`
	FinancialStatus   string           `json:"financial_status,omitempty"`
	FulfillmentStatus string           `json:"fulfillment_status,omitempty"`
}

// Result reports what Ingest did.
type Result struct {
	OrderID            uuid.UUID  `json:"order_id"`
	AssignedProviderID *uuid.UUID `json:"assigned_provider,omitempty"`
	Created            bool       `json:"created"`
	Updated            bool       `json:"updated"`
}

// Filters narrows order listings. An empty StoreIDs slice means every store.
type Filters struct {
	StoreIDs []uuid.UUID
	Status   *enums.OrderStatus
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
