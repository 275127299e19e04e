package product

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/pagination"
)

// Repository persists products and their storefront listings.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs returns the products keyed by id. Missing ids are simply absent.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ListByUser returns up to LimitWithBuffer products, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, status *enums.ProductStatus, limit int, cursor *pagination.Cursor) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).Where("user_id = ?", userID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Product
	err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error
	return rows, err
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ProductStatus, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": now}).Error
}

func (r *Repository) CreateExternalRef(ctx context.Context, ref *models.ProductExternalRef) error {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(ref).Error
}

// MatchExternal maps storefront product ids to catalog products for one store.
func (r *Repository) MatchExternal(ctx context.Context, platform enums.Platform, storeID uuid.UUID, externalIDs []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}

	var refs []models.ProductExternalRef
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND store_id = ? AND external_product_id IN ?", platform, storeID, externalIDs).
		Find(&refs).Error; err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ProductID)
	}
	products, err := r.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if p, ok := products[ref.ProductID]; ok {
			out[ref.ExternalProductID] = p
		}
	}
	return out, nil
}
