package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkroute/inkroute-backend/api/responses"
	"github.com/inkroute/inkroute-backend/api/validators"
	"github.com/inkroute/inkroute-backend/internal/platforms"
	"github.com/inkroute/inkroute-backend/internal/webhooks"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

const (
	ShopifyShopDomainHeader = "X-Shopify-Shop-Domain"
	ShopifyWebhookIDHeader  = "X-Shopify-Webhook-Id"
	// DeliveryIDHeader is read from non-Shopify platforms when they send one.
	DeliveryIDHeader = "X-Webhook-Delivery-Id"
)

// Receiver is the webhook ingestion service.
type Receiver interface {
	Receive(ctx context.Context, d webhooks.Delivery) (*webhooks.Outcome, error)
}

type ack struct {
	Received bool   `json:"received"`
	Replayed bool   `json:"replayed,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
}

// ShopifyOrders handles orders/create and orders/update topics. Both share the same upsert path.
func ShopifyOrders(svc Receiver, maxBody int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		signature := strings.TrimSpace(r.Header.Get(platforms.ShopifySignatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shopify signature missing"))
			return
		}
		domain := strings.TrimSpace(r.Header.Get(ShopifyShopDomainHeader))
		if domain == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shopify shop domain missing"))
			return
		}

		body, err := readBody(w, r, maxBody)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		outcome, err := svc.Receive(ctx, webhooks.Delivery{
			Platform:   enums.PlatformShopify,
			ShopDomain: domain,
			DeliveryID: r.Header.Get(ShopifyWebhookIDHeader),
			Signature:  signature,
			Body:       body,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ackFrom(outcome))
	}
}

// PlatformOrders is the generic receiver at /webhooks/{platform}/{storeId}.
func PlatformOrders(svc Receiver, maxBody int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		platform, err := enums.ParsePlatform(chi.URLParam(r, "platform"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown platform"))
			return
		}
		header, ok := platforms.SignatureHeaderFor(platform)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown platform"))
			return
		}
		storeID, err := validators.ParseUUIDParam(chi.URLParam(r, "storeId"), "store id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		body, err := readBody(w, r, maxBody)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		deliveryID := r.Header.Get(DeliveryIDHeader)
		if platform == enums.PlatformShopify {
			deliveryID = r.Header.Get(ShopifyWebhookIDHeader)
		}

		outcome, err := svc.Receive(ctx, webhooks.Delivery{
			Platform:   platform,
			StoreID:    storeID,
			DeliveryID: deliveryID,
			Signature:  r.Header.Get(header),
			Body:       body,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ackFrom(outcome))
	}
}

func readBody(w http.ResponseWriter, r *http.Request, maxBody int64) ([]byte, error) {
	reader := r.Body
	if maxBody > 0 {
		reader = http.MaxBytesReader(w, r.Body, maxBody)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large").
				WithDetails(map[string]any{"limit": tooLarge.Limit})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body")
	}
	if len(body) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook body required")
	}
	return body, nil
}

func ackFrom(outcome *webhooks.Outcome) ack {
	out := ack{Received: true}
	if outcome == nil {
		return out
	}
	out.Replayed = outcome.Replayed
	if outcome.Result != nil {
		out.OrderID = outcome.Result.OrderID.String()
	}
	return out
}
