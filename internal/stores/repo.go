package stores

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

// Repository handles store persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to store operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new store row.
func (r *Repository) Create(ctx context.Context, store *models.Store) error {
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(store).Error
}

// FindByID loads a store by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// FindByShopDomain resolves a storefront by its platform domain, case-insensitively.
func (r *Repository) FindByShopDomain(ctx context.Context, platform enums.Platform, domain string) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND LOWER(shop_domain) = ?", platform, strings.ToLower(strings.TrimSpace(domain))).
		First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// FindByAPIKeyPrefix loads the store holding the key prefix.
func (r *Repository) FindByAPIKeyPrefix(ctx context.Context, prefix string) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("api_key_prefix = ?", prefix).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// FindByOwner returns all stores owned by the provided user.
func (r *Repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Store, error) {
	var stores []models.Store
	if err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerID).
		Order("created_at ASC, id ASC").
		Find(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}

// UpdateAPIKey replaces the stored key prefix and hash.
func (r *Repository) UpdateAPIKey(ctx context.Context, id uuid.UUID, prefix, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ?", id).
		Updates(map[string]any{"api_key_prefix": prefix, "api_key_hash": hash}).Error
}
