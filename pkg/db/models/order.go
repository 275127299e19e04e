package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/types"
)

// Order is a customer order received from a storefront or the public API.
// (store_id, external_order_id) and (platform, external_order_id) are unique.
type Order struct {
	ID                        uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID                   uuid.UUID               `gorm:"column:store_id;type:uuid;not null"`
	Platform                  enums.Platform          `gorm:"column:platform;type:text;not null"`
	ExternalOrderID           string                  `gorm:"column:external_order_id;not null"`
	OrderNumber               *string                 `gorm:"column:order_number"`
	CustomerEmail             string                  `gorm:"column:customer_email;not null"`
	CustomerName              string                  `gorm:"column:customer_name;not null"`
	ShippingAddress           types.Address           `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ShippingCountry           string                  `gorm:"column:shipping_country;not null"`
	SubtotalCents             int64                   `gorm:"column:subtotal_cents;not null"`
	ShippingCents             int64                   `gorm:"column:shipping_cents;not null"`
	TaxCents                  int64                   `gorm:"column:tax_cents;not null;default:0"`
	TotalCents                int64                   `gorm:"column:total_cents;not null"`
	AssignedProviderID        *uuid.UUID              `gorm:"column:assigned_provider_id;type:uuid"`
	ProductionCostCents       *int64                  `gorm:"column:production_cost_cents"`
	ProfitCents               *int64                  `gorm:"column:profit_cents"`
	ProfitMargin              *decimal.Decimal        `gorm:"column:profit_margin;type:numeric(12,2)"`
	AssignmentMethod          *enums.AssignmentMethod `gorm:"column:assignment_method;type:text"`
	Status                    enums.OrderStatus       `gorm:"column:status;type:text;not null;default:'created'"`
	FinancialStatus           *string                 `gorm:"column:financial_status"`
	ExternalFulfillmentStatus *string                 `gorm:"column:external_fulfillment_status"`
	TrackingNumber            *string                 `gorm:"column:tracking_number"`
	TrackingURL               *string                 `gorm:"column:tracking_url"`
	Carrier                   *string                 `gorm:"column:carrier"`
	ShippedAt                 *time.Time              `gorm:"column:shipped_at"`
	CancelReason              *string                 `gorm:"column:cancel_reason"`
	CancelledAt               *time.Time              `gorm:"column:cancelled_at"`
	Items                     []OrderItem             `gorm:"foreignKey:OrderID"`
	CreatedAt                 time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots the product and price at order time. TotalCents = UnitPriceCents * Quantity.
type OrderItem struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID                   `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         *uuid.UUID                  `gorm:"column:product_id;type:uuid"`
	ExternalProductID *string                     `gorm:"column:external_product_id"`
	VariantID         *string                     `gorm:"column:variant_id"`
	DesignID          *uuid.UUID                  `gorm:"column:design_id;type:uuid"`
	ProductType       string                      `gorm:"column:product_type;not null;default:''"`
	Name              string                      `gorm:"column:name;not null"`
	SKU               *string                     `gorm:"column:sku"`
	Quantity          int                         `gorm:"column:quantity;not null"`
	UnitPriceCents    int64                       `gorm:"column:unit_price_cents;not null"`
	TotalCents        int64                       `gorm:"column:total_cents;not null"`
	FulfillmentStatus enums.ItemFulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'pending'"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// FulfillmentJob tracks production of one order item at a provider, with retry bookkeeping.
type FulfillmentJob struct {
	ID          uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID uuid.UUID                  `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex"`
	ProviderID  *uuid.UUID                 `gorm:"column:provider_id;type:uuid"`
	Status      enums.FulfillmentJobStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Attempts    int                        `gorm:"column:attempts;not null;default:0"`
	MaxAttempts int                        `gorm:"column:max_attempts;not null;default:3"`
	NextRetryAt *time.Time                 `gorm:"column:next_retry_at"`
	LastError   *string                    `gorm:"column:last_error"`
	CreatedAt   time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
