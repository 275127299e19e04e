package providers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

// Repository persists print providers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListActive(ctx context.Context) ([]models.Provider, error)
	ListAll(ctx context.Context) ([]models.Provider, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	Create(ctx context.Context, provider *models.Provider) error
	Update(ctx context.Context, provider *models.Provider) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ProviderStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the provider repository to a gorm connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListActive returns active providers in a stable order so selection is deterministic.
func (r *repository) ListActive(ctx context.Context) ([]models.Provider, error) {
	var rows []models.Provider
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.ProviderStatusActive).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListAll(ctx context.Context) ([]models.Provider, error) {
	var rows []models.Provider
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&provider).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) Create(ctx context.Context, provider *models.Provider) error {
	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}
	if provider.Status == "" {
		provider.Status = enums.ProviderStatusActive
	}
	return r.db.WithContext(ctx).Create(provider).Error
}

func (r *repository) Update(ctx context.Context, provider *models.Provider) error {
	return r.db.WithContext(ctx).Save(provider).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ProviderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Provider{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
