package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/types"
)

const (
	EtsySignatureHeader = "X-Etsy-Signature"
	etsyAPIBase         = "https://openapi.etsy.com/v3/application"
)

type etsyAdapter struct {
	baseAdapter
}

func (a *etsyAdapter) Platform() enums.Platform { return enums.PlatformEtsy }

func (a *etsyAdapter) SignatureHeader() string { return EtsySignatureHeader }

func (a *etsyAdapter) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return verifyHex(a.secret, rawBody, signature)
}

type etsyMoney struct {
	Amount  int64 `json:"amount"`
	Divisor int64 `json:"divisor"`
}

type etsyReceipt struct {
	ReceiptID    flexString `json:"receipt_id"`
	BuyerEmail   string     `json:"buyer_email"`
	Name         string     `json:"name"`
	FirstLine    string     `json:"first_line"`
	SecondLine   *string    `json:"second_line"`
	City         string     `json:"city"`
	State        string     `json:"state"`
	Zip          string     `json:"zip"`
	CountryISO   string     `json:"country_iso"`
	Status       string     `json:"status"`
	IsPaid       bool       `json:"is_paid"`
	Transactions []struct {
		ListingID flexString `json:"listing_id"`
		ProductID flexString `json:"product_id"`
		Title     string     `json:"title"`
		SKU       string     `json:"sku"`
		Quantity  int        `json:"quantity"`
		Price     etsyMoney  `json:"price"`
	} `json:"transactions"`
	TotalShippingCost *etsyMoney `json:"total_shipping_cost"`
	TotalTaxCost      *etsyMoney `json:"total_tax_cost"`
}

func (a *etsyAdapter) ParseWebhook(rawBody []byte) (orders.Submission, error) {
	var payload etsyReceipt
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return orders.Submission{}, fmt.Errorf("decode etsy receipt: %w", err)
	}
	if payload.ReceiptID == "" {
		return orders.Submission{}, fmt.Errorf("etsy receipt is missing receipt_id")
	}

	sub := orders.Submission{
		StoreID:           a.store.ID,
		Platform:          enums.PlatformEtsy,
		ExternalOrderID:   payload.ReceiptID.String(),
		OrderNumber:       payload.ReceiptID.String(),
		FulfillmentStatus: payload.Status,
		Customer:          orders.Customer{Email: payload.BuyerEmail, Name: payload.Name},
		ShippingAddress: types.Address{
			Name:       payload.Name,
			Line1:      payload.FirstLine,
			Line2:      nonEmpty(payload.SecondLine),
			City:       payload.City,
			State:      payload.State,
			PostalCode: payload.Zip,
			Country:    payload.CountryISO,
		},
	}
	if payload.IsPaid {
		sub.FinancialStatus = "paid"
	}
	for _, tx := range payload.Transactions {
		// Etsy listings are the storefront product; product_id is a variant of the listing.
		sub.Items = append(sub.Items, orders.SubmissionItem{
			ExternalProductID: tx.ListingID.String(),
			VariantID:         tx.ProductID.String(),
			Name:              tx.Title,
			SKU:               tx.SKU,
			Quantity:          tx.Quantity,
			UnitPriceCents:    fractionToCents(tx.Price.Amount, tx.Price.Divisor),
		})
	}
	if m := payload.TotalShippingCost; m != nil {
		cents := fractionToCents(m.Amount, m.Divisor)
		sub.ShippingCents = &cents
	}
	if m := payload.TotalTaxCost; m != nil {
		cents := fractionToCents(m.Amount, m.Divisor)
		sub.TaxCents = &cents
	}
	return sub, nil
}

// UpdateOrderStatus only pushes tracking. Etsy has no API for seller-side receipt cancellation.
func (a *etsyAdapter) UpdateOrderStatus(ctx context.Context, externalOrderID string, update StatusUpdate) error {
	if a.creds.AccessToken == "" || a.creds.ShopID == "" {
		return ErrNotConnected
	}
	if update.Status != enums.OrderStatusShipped || update.TrackingNumber == "" {
		return nil
	}
	url := fmt.Sprintf("%s/shops/%s/receipts/%s/tracking", etsyAPIBase, a.creds.ShopID, externalOrderID)
	headers := map[string]string{
		"Authorization": "Bearer " + a.creds.AccessToken,
		"x-api-key":     a.creds.APIKey,
	}
	return doJSON(ctx, a.client, http.MethodPost, url, headers, map[string]any{
		"tracking_code": update.TrackingNumber,
		"carrier_name":  update.Carrier,
	})
}
