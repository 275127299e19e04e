// Package platforms translates storefront webhooks into order submissions and pushes
// status changes back to the storefront.
package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

const defaultShopifyAPIVersion = "2024-04"

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrNotConnected means the store has no credentials for outbound calls.
	ErrNotConnected = errors.New("store is not connected for outbound calls")
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusUpdate is pushed to the storefront when an order changes state locally.
type StatusUpdate struct {
	Status         enums.OrderStatus
	TrackingNumber string
	TrackingURL    string
	Carrier        string
	Reason         string
}

// Adapter is implemented once per storefront platform.
type Adapter interface {
	Platform() enums.Platform
	SignatureHeader() string
	VerifyWebhookSignature(rawBody []byte, signature string) bool
	ParseWebhook(rawBody []byte) (orders.Submission, error)
	UpdateOrderStatus(ctx context.Context, externalOrderID string, update StatusUpdate) error
}

// credentials is the platform_credentials JSON of a store. Each platform reads its own fields.
type credentials struct {
	AccessToken    string `json:"access_token,omitempty"`
	APIVersion     string `json:"api_version,omitempty"`
	SiteURL        string `json:"site_url,omitempty"`
	ConsumerKey    string `json:"consumer_key,omitempty"`
	ConsumerSecret string `json:"consumer_secret,omitempty"`
	ShopID         string `json:"shop_id,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
}

type options struct {
	shopifyAPIVersion string
	fallbackSecret    string
}

// Option tunes adapter construction.
type Option func(*options)

// WithShopifyAPIVersion selects the Admin REST version used for outbound Shopify calls.
func WithShopifyAPIVersion(version string) Option {
	return func(o *options) {
		if strings.TrimSpace(version) != "" {
			o.shopifyAPIVersion = strings.TrimSpace(version)
		}
	}
}

// WithFallbackSecret signs webhooks of stores that have no secret of their own.
func WithFallbackSecret(secret string) Option {
	return func(o *options) { o.fallbackSecret = secret }
}

// New returns the adapter for the store's platform.
func New(store models.Store, client HTTPDoer, opts ...Option) (Adapter, error) {
	o := options{shopifyAPIVersion: defaultShopifyAPIVersion}
	for _, opt := range opts {
		opt(&o)
	}
	creds, err := decodeCredentials(store.Credentials)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	secret := store.WebhookSecret
	if secret == "" {
		secret = o.fallbackSecret
	}
	base := baseAdapter{store: store, client: client, creds: creds, secret: secret}

	switch store.Platform {
	case enums.PlatformShopify:
		version := o.shopifyAPIVersion
		if creds.APIVersion != "" {
			version = creds.APIVersion
		}
		return &shopifyAdapter{baseAdapter: base, apiVersion: version}, nil
	case enums.PlatformWooCommerce:
		return &wooAdapter{baseAdapter: base}, nil
	case enums.PlatformEtsy:
		return &etsyAdapter{baseAdapter: base}, nil
	case enums.PlatformAPI:
		return &apiAdapter{baseAdapter: base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, store.Platform)
	}
}

// SignatureHeaderFor names the header a platform signs its webhooks in.
func SignatureHeaderFor(platform enums.Platform) (string, bool) {
	switch platform {
	case enums.PlatformShopify:
		return ShopifySignatureHeader, true
	case enums.PlatformWooCommerce:
		return WooCommerceSignatureHeader, true
	case enums.PlatformEtsy:
		return EtsySignatureHeader, true
	case enums.PlatformAPI:
		return APISignatureHeader, true
	default:
		return "", false
	}
}

func decodeCredentials(raw json.RawMessage) (credentials, error) {
	var creds credentials
	if len(raw) == 0 || string(raw) == "null" {
		return creds, nil
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return creds, fmt.Errorf("decode platform credentials: %w", err)
	}
	return creds, nil
}

type baseAdapter struct {
	store  models.Store
	client HTTPDoer
	creds  credentials
	secret string
}
