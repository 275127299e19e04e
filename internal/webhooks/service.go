// Package webhooks receives storefront order webhooks and feeds them to the ingestion pipeline.
package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/internal/platforms"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

const rateWindow = time.Minute

type storeFinder interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Store, error)
	ByShopDomain(ctx context.Context, platform enums.Platform, domain string) (*models.Store, error)
}

type orderIngester interface {
	Ingest(ctx context.Context, sub orders.Submission, mode orders.Mode) (*orders.Result, error)
}

type deliveryGuard interface {
	Claim(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Delivery is one inbound webhook request. Exactly one of StoreID or ShopDomain identifies the store.
type Delivery struct {
	Platform   enums.Platform
	StoreID    uuid.UUID
	ShopDomain string
	DeliveryID string
	Signature  string
	Body       []byte
}

// Outcome reports what a delivery did. Replayed deliveries were already handled and did nothing.
type Outcome struct {
	Result   *orders.Result
	Replayed bool
}

type ServiceParams struct {
	Stores         storeFinder
	Orders         orderIngester
	Guard          deliveryGuard
	Limiter        rateLimiter
	RateLimit      int
	HTTPClient     platforms.HTTPDoer
	AdapterOptions []platforms.Option
	Logger         *logger.Logger
}

type Service struct {
	stores    storeFinder
	orders    orderIngester
	guard     deliveryGuard
	limiter   rateLimiter
	rateLimit int64
	client    platforms.HTTPDoer
	opts      []platforms.Option
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Stores == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store finder required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order ingester required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		stores:    params.Stores,
		orders:    params.Orders,
		guard:     params.Guard,
		limiter:   params.Limiter,
		rateLimit: int64(params.RateLimit),
		client:    params.HTTPClient,
		opts:      params.AdapterOptions,
		logg:      params.Logger,
	}, nil
}

// Receive verifies and ingests one delivery. Signature failures never write anything.
func (s *Service) Receive(ctx context.Context, d Delivery) (*Outcome, error) {
	store, err := s.resolveStore(ctx, d)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithStoreID(ctx, store.ID.String())
	ctx = s.logg.WithPlatform(ctx, string(store.Platform))

	if err := s.allow(ctx, store.ID); err != nil {
		return nil, err
	}

	adapter, err := platforms.New(*store, s.client, s.opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "platform adapter")
	}
	signature := strings.TrimSpace(d.Signature)
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook signature missing").
			WithDetails(map[string]any{"header": adapter.SignatureHeader()})
	}
	if !adapter.VerifyWebhookSignature(d.Body, signature) {
		s.logg.Warn(ctx, "webhook signature rejected")
		return nil, pkgerrors.New(pkgerrors.CodeSignature, "invalid webhook signature")
	}

	scope := "webhook:" + string(store.Platform)
	deliveryID := strings.TrimSpace(d.DeliveryID)
	claimed := false
	if deliveryID != "" && s.guard != nil {
		first, err := s.guard.Claim(ctx, scope, deliveryID)
		if err != nil {
			// Redis is an optimisation here; the natural key still makes ingestion idempotent.
			s.logg.WarnErr(ctx, "webhook dedupe unavailable", err)
		} else if !first {
			s.logg.Debug(ctx, "webhook delivery already processed")
			return &Outcome{Replayed: true}, nil
		} else {
			claimed = true
		}
	}

	result, err := s.ingest(ctx, adapter, d.Body)
	if err != nil {
		if claimed {
			if relErr := s.guard.Release(ctx, scope, deliveryID); relErr != nil {
				s.logg.WarnErr(ctx, "release webhook delivery claim", relErr)
			}
		}
		return nil, err
	}
	return &Outcome{Result: result}, nil
}

func (s *Service) ingest(ctx context.Context, adapter platforms.Adapter, body []byte) (*orders.Result, error) {
	sub, err := adapter.ParseWebhook(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}
	return s.orders.Ingest(ctx, sub, orders.ModeWebhook)
}

func (s *Service) resolveStore(ctx context.Context, d Delivery) (*models.Store, error) {
	if d.StoreID != uuid.Nil {
		store, err := s.stores.Get(ctx, d.StoreID)
		if err != nil {
			return nil, err
		}
		if d.Platform != "" && store.Platform != d.Platform {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return store, nil
	}
	domain := strings.ToLower(strings.TrimSpace(d.ShopDomain))
	if domain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store identifier missing")
	}
	return s.stores.ByShopDomain(ctx, d.Platform, domain)
}

func (s *Service) allow(ctx context.Context, storeID uuid.UUID) error {
	if s.limiter == nil || s.rateLimit <= 0 {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, "webhook:"+storeID.String(), s.rateLimit, rateWindow)
	if err != nil {
		s.logg.WarnErr(ctx, "webhook rate limiter unavailable", err)
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, fmt.Sprintf("more than %d webhooks per minute", s.rateLimit))
	}
	return nil
}
