package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/types"
)

const WooCommerceSignatureHeader = "X-WC-Webhook-Signature"

type wooAdapter struct {
	baseAdapter
}

func (a *wooAdapter) Platform() enums.Platform { return enums.PlatformWooCommerce }

func (a *wooAdapter) SignatureHeader() string { return WooCommerceSignatureHeader }

func (a *wooAdapter) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return verifyBase64(a.secret, rawBody, signature)
}

type wooAddress struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Address1  string  `json:"address_1"`
	Address2  *string `json:"address_2"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	Postcode  string  `json:"postcode"`
	Country   string  `json:"country"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone"`
}

type wooOrder struct {
	ID        flexString `json:"id"`
	Number    flexString `json:"number"`
	Status    string     `json:"status"`
	Billing   wooAddress `json:"billing"`
	Shipping  wooAddress `json:"shipping"`
	LineItems []struct {
		ProductID   flexString `json:"product_id"`
		VariationID flexString `json:"variation_id"`
		SKU         string     `json:"sku"`
		Name        string     `json:"name"`
		Quantity    int        `json:"quantity"`
		Price       flexString `json:"price"`
	} `json:"line_items"`
	ShippingTotal flexString `json:"shipping_total"`
	TotalTax      flexString `json:"total_tax"`
	DatePaid      *string    `json:"date_paid"`
}

func (a *wooAdapter) ParseWebhook(rawBody []byte) (orders.Submission, error) {
	var payload wooOrder
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return orders.Submission{}, fmt.Errorf("decode woocommerce order: %w", err)
	}
	if payload.ID == "" {
		return orders.Submission{}, fmt.Errorf("woocommerce order is missing id")
	}

	ship := payload.Shipping
	if ship.Address1 == "" {
		ship = payload.Billing
	}
	name := joinName(ship.FirstName, ship.LastName)
	sub := orders.Submission{
		StoreID:           a.store.ID,
		Platform:          enums.PlatformWooCommerce,
		ExternalOrderID:   payload.ID.String(),
		OrderNumber:       payload.Number.String(),
		FulfillmentStatus: payload.Status,
		Customer: orders.Customer{
			Email: payload.Billing.Email,
			Name:  joinName(payload.Billing.FirstName, payload.Billing.LastName),
		},
		ShippingAddress: types.Address{
			Name:       name,
			Line1:      ship.Address1,
			Line2:      nonEmpty(ship.Address2),
			City:       ship.City,
			State:      ship.State,
			PostalCode: ship.Postcode,
			Country:    ship.Country,
			Phone:      nonEmpty(ship.Phone),
		},
	}
	if payload.DatePaid != nil && *payload.DatePaid != "" {
		sub.FinancialStatus = "paid"
	}
	if sub.Customer.Name == "" {
		sub.Customer.Name = name
	}

	for _, li := range payload.LineItems {
		price, err := toCents(li.Price.String())
		if err != nil {
			return orders.Submission{}, fmt.Errorf("line item %q: %w", li.Name, err)
		}
		variant := li.VariationID.String()
		if variant == "0" {
			variant = ""
		}
		sub.Items = append(sub.Items, orders.SubmissionItem{
			ExternalProductID: li.ProductID.String(),
			VariantID:         variant,
			Name:              li.Name,
			SKU:               li.SKU,
			Quantity:          li.Quantity,
			UnitPriceCents:    price,
		})
	}

	var err error
	if sub.ShippingCents, err = optionalCents(payload.ShippingTotal.String()); err != nil {
		return orders.Submission{}, fmt.Errorf("shipping_total: %w", err)
	}
	if sub.TaxCents, err = optionalCents(payload.TotalTax.String()); err != nil {
		return orders.Submission{}, fmt.Errorf("total_tax: %w", err)
	}
	return sub, nil
}

var wooStatuses = map[enums.OrderStatus]string{
	enums.OrderStatusProcessing: "processing",
	enums.OrderStatusFulfilled:  "completed",
	enums.OrderStatusShipped:    "completed",
	enums.OrderStatusCancelled:  "cancelled",
	enums.OrderStatusFailed:     "failed",
}

func (a *wooAdapter) UpdateOrderStatus(ctx context.Context, externalOrderID string, update StatusUpdate) error {
	if a.creds.SiteURL == "" || a.creds.ConsumerKey == "" {
		return ErrNotConnected
	}
	status, ok := wooStatuses[update.Status]
	if !ok {
		return nil
	}
	body := map[string]any{"status": status}
	if update.TrackingNumber != "" {
		body["meta_data"] = []map[string]string{
			{"key": "_tracking_number", "value": update.TrackingNumber},
			{"key": "_tracking_url", "value": update.TrackingURL},
			{"key": "_tracking_provider", "value": update.Carrier},
		}
	}
	url := fmt.Sprintf("%s/wp-json/wc/v3/orders/%s?consumer_key=%s&consumer_secret=%s",
		strings.TrimSuffix(a.creds.SiteURL, "/"), externalOrderID, a.creds.ConsumerKey, a.creds.ConsumerSecret)
	return doJSON(ctx, a.client, http.MethodPut, url, nil, body)
}
