package providers

import (
	"strings"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
)

const (
	DefaultBaseCostCents              int64   = 500
	DefaultDomesticShippingCents      int64   = 500
	DefaultInternationalShippingCents int64   = 1500
	DefaultProductionDays             float64 = 5
	DefaultQualityRating              float64 = 3
	DefaultOnTimeRate                 float64 = 80
)

// Profile is a provider with every unset pricing or performance value replaced by its default.
type Profile struct {
	ID                         uuid.UUID
	Country                    string
	SupportedProducts          []string
	BaseCostCents              int64
	DomesticShippingCents      int64
	InternationalShippingCents int64
	ProductionDays             float64
	QualityRating              float64
	OnTimeRate                 float64
}

// ProfileFrom resolves defaults once so scoring and costing never see zero values.
func ProfileFrom(p models.Provider) Profile {
	return Profile{
		ID:                         p.ID,
		Country:                    strings.TrimSpace(p.Country),
		SupportedProducts:          []string(p.SupportedProducts),
		BaseCostCents:              positiveOr(p.BaseCostCents, DefaultBaseCostCents),
		DomesticShippingCents:      positiveOr(p.DomesticShippingCents, DefaultDomesticShippingCents),
		InternationalShippingCents: positiveOr(p.InternationalShippingCents, DefaultInternationalShippingCents),
		ProductionDays:             positiveFloatOr(p.AvgProductionDays, DefaultProductionDays),
		QualityRating:              positiveFloatOr(p.QualityRating, DefaultQualityRating),
		OnTimeRate:                 positiveFloatOr(p.OnTimeRate, DefaultOnTimeRate),
	}
}

// Supports reports whether the provider can produce the product type. An empty list supports everything.
func (p Profile) Supports(productType string) bool {
	if len(p.SupportedProducts) == 0 {
		return true
	}
	for _, supported := range p.SupportedProducts {
		if strings.EqualFold(strings.TrimSpace(supported), strings.TrimSpace(productType)) {
			return true
		}
	}
	return false
}

// Domestic reports whether the provider ships from the given country.
func (p Profile) Domestic(country string) bool {
	return p.Country != "" && strings.EqualFold(p.Country, strings.TrimSpace(country))
}

func positiveOr(v, fallback int64) int64 {
	if v <= 0 {
		return fallback
	}
	return v
}

func positiveFloatOr(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}
