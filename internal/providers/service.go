package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
)

// CreateInput is the admin payload for registering a provider.
type CreateInput struct {
	Name                       string   `json:"name" validate:"required"`
	Country                    string   `json:"country" validate:"required,len=2"`
	SupportedProducts          []string `json:"supported_products"`
	BaseCostCents              int64    `json:"base_cost_cents" validate:"gte=0"`
	DomesticShippingCents      int64    `json:"domestic_shipping_cents" validate:"gte=0"`
	InternationalShippingCents int64    `json:"international_shipping_cents" validate:"gte=0"`
	AvgProductionDays          float64  `json:"avg_production_days" validate:"gte=0"`
	QualityRating              float64  `json:"quality_rating" validate:"gte=0,lte=5"`
	OnTimeRate                 float64  `json:"on_time_rate" validate:"gte=0,lte=100"`
}

// Service exposes provider administration.
type Service interface {
	List(ctx context.Context) ([]models.Provider, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	Create(ctx context.Context, input CreateInput) (*models.Provider, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ProviderStatus) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context) ([]models.Provider, error) {
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list providers")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	provider, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}
	return provider, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Provider, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	supported := make(pq.StringArray, 0, len(input.SupportedProducts))
	for _, productType := range input.SupportedProducts {
		if trimmed := strings.TrimSpace(productType); trimmed != "" {
			supported = append(supported, strings.ToLower(trimmed))
		}
	}

	provider := &models.Provider{
		Name:                       name,
		Country:                    strings.ToUpper(strings.TrimSpace(input.Country)),
		SupportedProducts:          supported,
		BaseCostCents:              input.BaseCostCents,
		DomesticShippingCents:      input.DomesticShippingCents,
		InternationalShippingCents: input.InternationalShippingCents,
		AvgProductionDays:          input.AvgProductionDays,
		QualityRating:              input.QualityRating,
		OnTimeRate:                 input.OnTimeRate,
		Status:                     enums.ProviderStatusActive,
	}
	if err := s.repo.Create(ctx, provider); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create provider")
	}
	return provider, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ProviderStatus) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid provider status")
	}
	found, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update provider status")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
	}
	return nil
}
