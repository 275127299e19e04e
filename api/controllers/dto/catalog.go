package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

type Product struct {
	ID             uuid.UUID           `json:"id"`
	DesignID       *uuid.UUID          `json:"design_id,omitempty"`
	Name           string              `json:"name"`
	ProductType    string              `json:"product_type"`
	BasePriceCents int64               `json:"base_price_cents"`
	Status         enums.ProductStatus `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
}

func ProductFrom(p models.Product) Product {
	return Product{
		ID:             p.ID,
		DesignID:       p.DesignID,
		Name:           p.Name,
		ProductType:    p.ProductType,
		BasePriceCents: p.BasePriceCents,
		Status:         p.Status,
		CreatedAt:      p.CreatedAt,
	}
}

func Products(rows []models.Product) []Product {
	out := make([]Product, 0, len(rows))
	for _, p := range rows {
		out = append(out, ProductFrom(p))
	}
	return out
}

type ProductLink struct {
	ID                uuid.UUID      `json:"id"`
	ProductID         uuid.UUID      `json:"product_id"`
	StoreID           uuid.UUID      `json:"store_id"`
	Platform          enums.Platform `json:"platform"`
	ExternalProductID string         `json:"external_product_id"`
}

func ProductLinkFrom(ref models.ProductExternalRef) ProductLink {
	return ProductLink{
		ID:                ref.ID,
		ProductID:         ref.ProductID,
		StoreID:           ref.StoreID,
		Platform:          ref.Platform,
		ExternalProductID: ref.ExternalProductID,
	}
}

type Provider struct {
	ID                         uuid.UUID            `json:"id"`
	Name                       string               `json:"name"`
	Country                    string               `json:"country"`
	SupportedProducts          []string             `json:"supported_products"`
	BaseCostCents              int64                `json:"base_cost_cents"`
	DomesticShippingCents      int64                `json:"domestic_shipping_cents"`
	InternationalShippingCents int64                `json:"international_shipping_cents"`
	AvgProductionDays          float64              `json:"avg_production_days"`
	QualityRating              float64              `json:"quality_rating"`
	OnTimeRate                 float64              `json:"on_time_rate"`
	Status                     enums.ProviderStatus `json:"status"`
	CreatedAt                  time.Time            `json:"created_at"`
}

func ProviderFrom(p models.Provider) Provider {
	supported := []string(p.SupportedProducts)
	if supported == nil {
		supported = []string{}
	}
	return Provider{
		ID:                         p.ID,
		Name:                       p.Name,
		Country:                    p.Country,
		SupportedProducts:          supported,
		BaseCostCents:              p.BaseCostCents,
		DomesticShippingCents:      p.DomesticShippingCents,
		InternationalShippingCents: p.InternationalShippingCents,
		AvgProductionDays:          p.AvgProductionDays,
		QualityRating:              p.QualityRating,
		OnTimeRate:                 p.OnTimeRate,
		Status:                     p.Status,
		CreatedAt:                  p.CreatedAt,
	}
}

func Providers(rows []models.Provider) []Provider {
	out := make([]Provider, 0, len(rows))
	for _, p := range rows {
		out = append(out, ProviderFrom(p))
	}
	return out
}

// Store never exposes the api key hash, the webhook secret or platform credentials.
type Store struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Platform     enums.Platform `json:"platform"`
	ShopDomain   *string        `json:"shop_domain,omitempty"`
	APIKeyPrefix *string        `json:"api_key_prefix,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func StoreFrom(s models.Store) Store {
	return Store{
		ID:           s.ID,
		Name:         s.Name,
		Platform:     s.Platform,
		ShopDomain:   s.ShopDomain,
		APIKeyPrefix: s.APIKeyPrefix,
		CreatedAt:    s.CreatedAt,
	}
}

type Notification struct {
	ID        uuid.UUID              `json:"id"`
	StoreID   *uuid.UUID             `json:"store_id,omitempty"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	Read      bool                   `json:"read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func Notifications(rows []models.Notification) []Notification {
	out := make([]Notification, 0, len(rows))
	for _, n := range rows {
		out = append(out, Notification{
			ID:        n.ID,
			StoreID:   n.StoreID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			Read:      n.ReadAt != nil,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}

type Subscription struct {
	ID               uuid.UUID                `json:"id"`
	StoreID          uuid.UUID                `json:"store_id"`
	Plan             string                   `json:"plan"`
	Status           enums.SubscriptionStatus `json:"status"`
	PeriodStart      time.Time                `json:"period_start"`
	PeriodEnd        time.Time                `json:"period_end"`
	LastReconciledAt *time.Time               `json:"last_reconciled_at,omitempty"`
}

func SubscriptionFrom(s models.Subscription) Subscription {
	return Subscription{
		ID:               s.ID,
		StoreID:          s.StoreID,
		Plan:             s.Plan,
		Status:           s.Status,
		PeriodStart:      s.PeriodStart,
		PeriodEnd:        s.PeriodEnd,
		LastReconciledAt: s.LastReconciledAt,
	}
}
