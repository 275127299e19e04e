package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/inkroute/inkroute-backend/pkg/enums"
)

// Provider is a print partner. Zero-valued pricing and performance fields mean "not configured".
type Provider struct {
	ID                         uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name                       string               `gorm:"column:name;not null"`
	Country                    string               `gorm:"column:country;not null"`
	SupportedProducts          pq.StringArray       `gorm:"column:supported_products;type:text[]"`
	BaseCostCents              int64                `gorm:"column:base_cost_cents;not null;default:0"`
	DomesticShippingCents      int64                `gorm:"column:domestic_shipping_cents;not null;default:0"`
	InternationalShippingCents int64                `gorm:"column:international_shipping_cents;not null;default:0"`
	AvgProductionDays          float64              `gorm:"column:avg_production_days;not null;default:0"`
	QualityRating              float64              `gorm:"column:quality_rating;not null;default:0"`
	OnTimeRate                 float64              `gorm:"column:on_time_rate;not null;default:0"`
	Status                     enums.ProviderStatus `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedAt                  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
