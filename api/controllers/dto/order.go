package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/types"
)

// Order is the JSON shape of an order on every REST surface.
type Order struct {
	ID                  uuid.UUID         `json:"id"`
	StoreID             uuid.UUID         `json:"store_id"`
	Platform            enums.Platform    `json:"platform"`
	ExternalOrderID     string            `json:"external_order_id"`
	OrderNumber         *string           `json:"order_number,omitempty"`
	Status              enums.OrderStatus `json:"status"`
	Customer            Customer          `json:"customer"`
	ShippingAddress     types.Address     `json:"shipping_address"`
	SubtotalCents       int64             `json:"subtotal_cents"`
	ShippingCents       int64             `json:"shipping_cents"`
	TaxCents            int64             `json:"tax_cents"`
	TotalCents          int64             `json:"total_cents"`
	AssignedProvider    *uuid.UUID        `json:"assigned_provider,omitempty"`
	AssignmentMethod    *string           `json:"assignment_method,omitempty"`
	ProductionCostCents *int64            `json:"production_cost_cents,omitempty"`
	ProfitCents         *int64            `json:"profit_cents,omitempty"`
	ProfitMargin        *string           `json:"profit_margin,omitempty"`
	FinancialStatus     *string           `json:"financial_status,omitempty"`
	Tracking            *Tracking         `json:"tracking,omitempty"`
	CancelReason        *string           `json:"cancel_reason,omitempty"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	Items               []OrderItem       `json:"items,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Tracking struct {
	Number    string     `json:"tracking_number"`
	URL       *string    `json:"tracking_url,omitempty"`
	Carrier   *string    `json:"carrier,omitempty"`
	ShippedAt *time.Time `json:"shipped_at,omitempty"`
}

type OrderItem struct {
	ID                uuid.UUID                   `json:"id"`
	ProductID         *uuid.UUID                  `json:"product_id,omitempty"`
	ExternalProductID *string                     `json:"external_product_id,omitempty"`
	VariantID         *string                     `json:"variant_id,omitempty"`
	DesignID          *uuid.UUID                  `json:"design_id,omitempty"`
	ProductType       string                      `json:"product_type,omitempty"`
	Name              string                      `json:"name"`
	SKU               *string                     `json:"sku,omitempty"`
	Quantity          int                         `json:"quantity"`
	UnitPriceCents    int64                       `json:"unit_price_cents"`
	TotalCents        int64                       `json:"total_cents"`
	FulfillmentStatus enums.ItemFulfillmentStatus `json:"fulfillment_status"`
}

func OrderFrom(o models.Order) Order {
	out := Order{
		ID:                  o.ID,
		StoreID:             o.StoreID,
		Platform:            o.Platform,
		ExternalOrderID:     o.ExternalOrderID,
		OrderNumber:         o.OrderNumber,
		Status:              o.Status,
		Customer:            Customer{Email: o.CustomerEmail, Name: o.CustomerName},
		ShippingAddress:     o.ShippingAddress,
		SubtotalCents:       o.SubtotalCents,
		ShippingCents:       o.ShippingCents,
		TaxCents:            o.TaxCents,
		TotalCents:          o.TotalCents,
		AssignedProvider:    o.AssignedProviderID,
		ProductionCostCents: o.ProductionCostCents,
		ProfitCents:         o.ProfitCents,
		FinancialStatus:     o.FinancialStatus,
		CancelReason:        o.CancelReason,
		CancelledAt:         o.CancelledAt,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
	if o.AssignmentMethod != nil {
		method := string(*o.AssignmentMethod)
		out.AssignmentMethod = &method
	}
	if o.ProfitMargin != nil {
		margin := o.ProfitMargin.StringFixed(2)
		out.ProfitMargin = &margin
	}
	if o.TrackingNumber != nil {
		out.Tracking = &Tracking{
			Number:    *o.TrackingNumber,
			URL:       o.TrackingURL,
			Carrier:   o.Carrier,
			ShippedAt: o.ShippedAt,
		}
	}
	if len(o.Items) > 0 {
		out.Items = make([]OrderItem, 0, len(o.Items))
		for _, item := range o.Items {
			out.Items = append(out.Items, OrderItemFrom(item))
		}
	}
	return out
}

func OrderItemFrom(i models.OrderItem) OrderItem {
	return OrderItem{
		ID:                i.ID,
		ProductID:         i.ProductID,
		ExternalProductID: i.ExternalProductID,
		VariantID:         i.VariantID,
		DesignID:          i.DesignID,
		ProductType:       i.ProductType,
		Name:              i.Name,
		SKU:               i.SKU,
		Quantity:          i.Quantity,
		UnitPriceCents:    i.UnitPriceCents,
		TotalCents:        i.TotalCents,
		FulfillmentStatus: i.FulfillmentStatus,
	}
}

func Orders(rows []models.Order) []Order {
	out := make([]Order, 0, len(rows))
	for _, o := range rows {
		out = append(out, OrderFrom(o))
	}
	return out
}
