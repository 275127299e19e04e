package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

const bytesPerMB int64 = 1024 * 1024

type meter struct {
	usageColumn string
	limitColumn string
	limitScale  int64
}

var meters = map[enums.QuotaResource]meter{
	enums.ResourceOrders:   {usageColumn: "orders_this_month", limitColumn: "max_orders_per_month", limitScale: 1},
	enums.ResourceProducts: {usageColumn: "products_count", limitColumn: "max_products", limitScale: 1},
	enums.ResourceAPICalls: {usageColumn: "api_calls_this_month", limitColumn: "max_api_calls_per_month", limitScale: 1},
	enums.ResourceStorage:  {usageColumn: "storage_bytes", limitColumn: "max_storage_mb", limitScale: bytesPerMB},
}

func meterFor(resource enums.QuotaResource) (meter, error) {
	m, ok := meters[resource]
	if !ok {
		return meter{}, fmt.Errorf("unknown quota resource %q", resource)
	}
	return m, nil
}

// Repository persists subscription counters. Every counter write is a single UPDATE statement.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByStoreID(ctx context.Context, storeID uuid.UUID) (*models.Subscription, error)
	StoreOwner(ctx context.Context, storeID uuid.UUID) (uuid.UUID, error)
	Increment(ctx context.Context, id uuid.UUID, resource enums.QuotaResource, delta int64, now time.Time) (bool, error)
	Reserve(ctx context.Context, id uuid.UUID, resource enums.QuotaResource, delta int64, now time.Time) (bool, error)
	ClaimWarning(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Recompute(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	RollPeriod(ctx context.Context, id uuid.UUID, start, end, now time.Time) (bool, error)
	ListIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByStoreID(ctx context.Context, storeID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("store_id = ?", storeID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) StoreOwner(ctx context.Context, storeID uuid.UUID) (uuid.UUID, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Select("id", "owner_user_id").Where("id = ?", storeID).First(&store).Error; err != nil {
		return uuid.Nil, err
	}
	return store.OwnerUserID, nil
}

// Increment adds delta to the counter, clamping at zero.
func (r *repository) Increment(ctx context.Context, id uuid.UUID, resource enums.QuotaResource, delta int64, now time.Time) (bool, error) {
	m, err := meterFor(resource)
	if err != nil {
		return false, err
	}
	col := m.usageColumn
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			col:          gorm.Expr("CASE WHEN "+col+" + ? < 0 THEN 0 ELSE "+col+" + ? END", delta, delta),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Reserve increments only while the result stays within the limit. A false result means the ceiling was hit
// or the subscription does not exist.
func (r *repository) Reserve(ctx context.Context, id uuid.UUID, resource enums.QuotaResource, delta int64, now time.Time) (bool, error) {
	m, err := meterFor(resource)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Where("("+m.limitColumn+" = ? OR "+m.usageColumn+" + ? <= "+m.limitColumn+" * ?)", models.Unlimited, delta, m.limitScale).
		UpdateColumns(map[string]any{
			m.usageColumn: gorm.Expr(m.usageColumn+" + ?", delta),
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimWarning stamps warning_notified_at unless a warning was already sent in the current period.
func (r *repository) ClaimWarning(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND (warning_notified_at IS NULL OR warning_notified_at < period_start)", id).
		UpdateColumns(map[string]any{"warning_notified_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

const recomputeSQL = `
UPDATE subscriptions SET
  orders_this_month = (
    SELECT COUNT(*) FROM orders o
    WHERE o.store_id = subscriptions.store_id AND o.status <> ? AND o.created_at >= subscriptions.period_start
  ),
  products_count = (
    SELECT COUNT(*) FROM products p
    WHERE p.user_id = (SELECT s.owner_user_id FROM stores s WHERE s.id = subscriptions.store_id) AND p.status <> ?
  ),
  storage_bytes = COALESCE((
    SELECT SUM(d.file_size_bytes) FROM designs d
    WHERE d.user_id = (SELECT s.owner_user_id FROM stores s WHERE s.id = subscriptions.store_id)
  ), 0) + COALESCE((
    SELECT SUM(p.mockup_bytes) FROM products p
    WHERE p.user_id = (SELECT s.owner_user_id FROM stores s WHERE s.id = subscriptions.store_id)
  ), 0),
  last_reconciled_at = ?,
  updated_at = ?
WHERE id = ?`

// Recompute overwrites the derived counters with absolute values from the source tables.
// API calls are metered only and are left untouched.
func (r *repository) Recompute(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(recomputeSQL,
		enums.OrderStatusCancelled, enums.ProductStatusArchived, now, now, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("period_end <= ?", now).
		Order("period_end ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// RollPeriod moves the billing window forward and zeroes the monthly counters. The period_end guard
// makes concurrent rollers a no-op.
func (r *repository) RollPeriod(ctx context.Context, id uuid.UUID, start, end, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND period_end <= ?", id, now).
		UpdateColumns(map[string]any{
			"period_start":         start,
			"period_end":           end,
			"orders_this_month":    0,
			"api_calls_this_month": 0,
			"warning_notified_at":  nil,
			"updated_at":           now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).Model(&models.Subscription{}).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	err := query.Pluck("id", &ids).Error
	return ids, err
}
