package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

const APISignatureHeader = "X-InkRoute-Signature"

// apiAdapter serves stores that push orders with their own integration and
// optionally receive status callbacks.
type apiAdapter struct {
	baseAdapter
}

func (a *apiAdapter) Platform() enums.Platform { return enums.PlatformAPI }

func (a *apiAdapter) SignatureHeader() string { return APISignatureHeader }

func (a *apiAdapter) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return verifyHex(a.secret, rawBody, signature)
}

func (a *apiAdapter) ParseWebhook(rawBody []byte) (orders.Submission, error) {
	var sub orders.Submission
	if err := json.Unmarshal(rawBody, &sub); err != nil {
		return orders.Submission{}, fmt.Errorf("decode order submission: %w", err)
	}
	if sub.ExternalOrderID == "" {
		return orders.Submission{}, fmt.Errorf("order submission is missing external_order_id")
	}
	sub.StoreID = a.store.ID
	sub.Platform = enums.PlatformAPI
	for i := range sub.Items {
		// Catalog linkage is resolved by external reference only on the webhook path.
		sub.Items[i].ProductID = nil
	}
	return sub, nil
}

type apiCallback struct {
	ExternalOrderID string            `json:"external_order_id"`
	Status          enums.OrderStatus `json:"status"`
	TrackingNumber  string            `json:"tracking_number,omitempty"`
	TrackingURL     string            `json:"tracking_url,omitempty"`
	Carrier         string            `json:"carrier,omitempty"`
	Reason          string            `json:"reason,omitempty"`
}

func (a *apiAdapter) UpdateOrderStatus(ctx context.Context, externalOrderID string, update StatusUpdate) error {
	if a.creds.CallbackURL == "" {
		return ErrNotConnected
	}
	payload := apiCallback{
		ExternalOrderID: externalOrderID,
		Status:          update.Status,
		TrackingNumber:  update.TrackingNumber,
		TrackingURL:     update.TrackingURL,
		Carrier:         update.Carrier,
		Reason:          update.Reason,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	headers := map[string]string{APISignatureHeader: SignHex(a.secret, body)}
	return doJSON(ctx, a.client, http.MethodPost, a.creds.CallbackURL, headers, json.RawMessage(body))
}
