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

const ShopifySignatureHeader = "X-Shopify-Hmac-Sha256"

type shopifyAdapter struct {
	baseAdapter
	apiVersion string
}

func (a *shopifyAdapter) Platform() enums.Platform { return enums.PlatformShopify }

func (a *shopifyAdapter) SignatureHeader() string { return ShopifySignatureHeader }

func (a *shopifyAdapter) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return verifyBase64(a.secret, rawBody, signature)
}

type shopifyMoneySet struct {
	ShopMoney struct {
		Amount string `json:"amount"`
	} `json:"shop_money"`
}

type shopifyAddress struct {
	Name      string  `json:"name"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Address1  string  `json:"address1"`
	Address2  *string `json:"address2"`
	City      string  `json:"city"`
	Province  string  `json:"province_code"`
	Zip       string  `json:"zip"`
	Country   string  `json:"country_code"`
	Phone     *string `json:"phone"`
}

type shopifyOrder struct {
	ID          flexString `json:"id"`
	OrderNumber flexString `json:"order_number"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Customer    *struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customer"`
	ShippingAddress *shopifyAddress `json:"shipping_address"`
	LineItems       []struct {
		ProductID flexString `json:"product_id"`
		VariantID flexString `json:"variant_id"`
		SKU       string     `json:"sku"`
		Title     string     `json:"title"`
		Name      string     `json:"name"`
		Quantity  int        `json:"quantity"`
		Price     flexString `json:"price"`
	} `json:"line_items"`
	TotalTax             flexString       `json:"total_tax"`
	TotalShippingSet     *shopifyMoneySet `json:"total_shipping_price_set"`
	FinancialStatus      string           `json:"financial_status"`
	FulfillmentStatusRaw *string          `json:"fulfillment_status"`
}

func (a *shopifyAdapter) ParseWebhook(rawBody []byte) (orders.Submission, error) {
	var payload shopifyOrder
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return orders.Submission{}, fmt.Errorf("decode shopify order: %w", err)
	}
	if payload.ID == "" {
		return orders.Submission{}, fmt.Errorf("shopify order is missing id")
	}

	sub := orders.Submission{
		StoreID:         a.store.ID,
		Platform:        enums.PlatformShopify,
		ExternalOrderID: payload.ID.String(),
		OrderNumber:     payload.OrderNumber.String(),
		FinancialStatus: payload.FinancialStatus,
		Customer:        orders.Customer{Email: payload.Email},
	}
	if sub.OrderNumber == "" {
		sub.OrderNumber = strings.TrimPrefix(payload.Name, "#")
	}
	if payload.FulfillmentStatusRaw != nil {
		sub.FulfillmentStatus = *payload.FulfillmentStatusRaw
	}
	if c := payload.Customer; c != nil {
		if sub.Customer.Email == "" {
			sub.Customer.Email = c.Email
		}
		sub.Customer.Name = joinName(c.FirstName, c.LastName)
	}
	if addr := payload.ShippingAddress; addr != nil {
		name := addr.Name
		if name == "" {
			name = joinName(addr.FirstName, addr.LastName)
		}
		sub.ShippingAddress = types.Address{
			Name:       name,
			Line1:      addr.Address1,
			Line2:      nonEmpty(addr.Address2),
			City:       addr.City,
			State:      addr.Province,
			PostalCode: addr.Zip,
			Country:    addr.Country,
			Phone:      nonEmpty(addr.Phone),
		}
		if sub.Customer.Name == "" {
			sub.Customer.Name = name
		}
	}

	for _, li := range payload.LineItems {
		price, err := toCents(li.Price.String())
		if err != nil {
			return orders.Submission{}, fmt.Errorf("line item %q: %w", li.Title, err)
		}
		name := li.Title
		if name == "" {
			name = li.Name
		}
		sub.Items = append(sub.Items, orders.SubmissionItem{
			ExternalProductID: li.ProductID.String(),
			VariantID:         li.VariantID.String(),
			Name:              name,
			SKU:               li.SKU,
			Quantity:          li.Quantity,
			UnitPriceCents:    price,
		})
	}

	tax, err := optionalCents(payload.TotalTax.String())
	if err != nil {
		return orders.Submission{}, fmt.Errorf("total_tax: %w", err)
	}
	sub.TaxCents = tax
	if payload.TotalShippingSet != nil {
		shipping, err := optionalCents(payload.TotalShippingSet.ShopMoney.Amount)
		if err != nil {
			return orders.Submission{}, fmt.Errorf("total_shipping_price_set: %w", err)
		}
		sub.ShippingCents = shipping
	}
	return sub, nil
}

func (a *shopifyAdapter) UpdateOrderStatus(ctx context.Context, externalOrderID string, update StatusUpdate) error {
	if a.creds.AccessToken == "" || a.store.ShopDomain == nil || *a.store.ShopDomain == "" {
		return ErrNotConnected
	}
	base := fmt.Sprintf("https://%s/admin/api/%s/orders/%s", strings.TrimSuffix(*a.store.ShopDomain, "/"), a.apiVersion, externalOrderID)
	headers := map[string]string{"X-Shopify-Access-Token": a.creds.AccessToken}

	switch update.Status {
	case enums.OrderStatusCancelled:
		return doJSON(ctx, a.client, http.MethodPost, base+"/cancel.json", headers, map[string]any{
			"reason": "other",
			"note":   update.Reason,
		})
	case enums.OrderStatusShipped:
		return doJSON(ctx, a.client, http.MethodPost, base+"/fulfillments.json", headers, map[string]any{
			"fulfillment": map[string]any{
				"tracking_number":  update.TrackingNumber,
				"tracking_url":     update.TrackingURL,
				"tracking_company": update.Carrier,
				"notify_customer":  true,
			},
		})
	default:
		return nil
	}
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
