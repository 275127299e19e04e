package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

// Repository persists order, item and job status transitions. Status writes are guarded
// by the expected current status so concurrent transitions cannot both apply.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	TransitionOrder(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	SetItemsStatus(ctx context.Context, orderID uuid.UUID, from []enums.ItemFulfillmentStatus, to enums.ItemFulfillmentStatus, now time.Time) error
	SetItemStatus(ctx context.Context, itemID uuid.UUID, from []enums.ItemFulfillmentStatus, to enums.ItemFulfillmentStatus, now time.Time) error
	SetJobsStatus(ctx context.Context, orderID uuid.UUID, from []enums.FulfillmentJobStatus, to enums.FulfillmentJobStatus, now time.Time) error
	SetJobsProvider(ctx context.Context, orderID, providerID uuid.UUID, now time.Time) error
	ListJobs(ctx context.Context, orderID uuid.UUID) ([]models.FulfillmentJob, error)
	CreateJobs(ctx context.Context, jobs []models.FulfillmentJob) error
	DueJobs(ctx context.Context, now time.Time, limit int) ([]models.FulfillmentJob, error)
	PendingJobs(ctx context.Context, orderID uuid.UUID) ([]models.FulfillmentJob, error)
	MarkJobSubmitted(ctx context.Context, jobID uuid.UUID, attempts int, now time.Time) (bool, error)
	MarkJobFailed(ctx context.Context, jobID uuid.UUID, attempts int, lastError string, nextRetryAt *time.Time, now time.Time) (bool, error)
	OrdersWithoutJobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
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

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) TransitionOrder(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

func (r *repository) SetItemsStatus(ctx context.Context, orderID uuid.UUID, from []enums.ItemFulfillmentStatus, to enums.ItemFulfillmentStatus, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND fulfillment_status IN ?", orderID, from).
		UpdateColumns(map[string]any{"fulfillment_status": to, "updated_at": now}).Error
}

func (r *repository) SetItemStatus(ctx context.Context, itemID uuid.UUID, from []enums.ItemFulfillmentStatus, to enums.ItemFulfillmentStatus, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND fulfillment_status IN ?", itemID, from).
		UpdateColumns(map[string]any{"fulfillment_status": to, "updated_at": now}).Error
}

func (r *repository) SetJobsStatus(ctx context.Context, orderID uuid.UUID, from []enums.FulfillmentJobStatus, to enums.FulfillmentJobStatus, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.FulfillmentJob{}).
		Where("order_id = ? AND status IN ?", orderID, from).
		UpdateColumns(map[string]any{"status": to, "next_retry_at": nil, "updated_at": now}).Error
}

func (r *repository) SetJobsProvider(ctx context.Context, orderID, providerID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.FulfillmentJob{}).
		Where("order_id = ?", orderID).
		UpdateColumns(map[string]any{"provider_id": providerID, "updated_at": now}).Error
}

func (r *repository) ListJobs(ctx context.Context, orderID uuid.UUID) ([]models.FulfillmentJob, error) {
	var jobs []models.FulfillmentJob
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&jobs).Error
	return jobs, err
}

func (r *repository) CreateJobs(ctx context.Context, jobs []models.FulfillmentJob) error {
	if len(jobs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&jobs).Error
}

var retryableJobStatuses = []enums.FulfillmentJobStatus{enums.JobStatusPending, enums.JobStatusFailed}

// DueJobs returns jobs that may be attempted now, oldest first. Jobs of cancelled or
// unassigned orders are never due.
func (r *repository) DueJobs(ctx context.Context, now time.Time, limit int) ([]models.FulfillmentJob, error) {
	var jobs []models.FulfillmentJob
	err := r.db.WithContext(ctx).
		Table("fulfillment_jobs AS j").
		Select("j.*").
		Joins("JOIN orders o ON o.id = j.order_id").
		Where("j.status IN ?", retryableJobStatuses).
		Where("j.attempts < j.max_attempts").
		Where("(j.next_retry_at IS NULL OR j.next_retry_at <= ?)", now).
		Where("o.assigned_provider_id IS NOT NULL").
		Where("o.status IN ?", []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusProcessing}).
		Order("j.created_at ASC, j.id ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// PendingJobs returns the never-attempted jobs of one order.
func (r *repository) PendingJobs(ctx context.Context, orderID uuid.UUID) ([]models.FulfillmentJob, error) {
	var jobs []models.FulfillmentJob
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ? AND attempts < max_attempts", orderID, enums.JobStatusPending).
		Order("created_at ASC, id ASC").
		Find(&jobs).Error
	return jobs, err
}

// MarkJobSubmitted applies only if the job still has the attempt count the caller read.
func (r *repository) MarkJobSubmitted(ctx context.Context, jobID uuid.UUID, attempts int, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FulfillmentJob{}).
		Where("id = ? AND attempts = ? AND status IN ?", jobID, attempts, retryableJobStatuses).
		UpdateColumns(map[string]any{
			"status":        enums.JobStatusSubmitted,
			"attempts":      attempts + 1,
			"next_retry_at": nil,
			"last_error":    nil,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkJobFailed(ctx context.Context, jobID uuid.UUID, attempts int, lastError string, nextRetryAt *time.Time, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FulfillmentJob{}).
		Where("id = ? AND attempts = ? AND status IN ?", jobID, attempts, retryableJobStatuses).
		UpdateColumns(map[string]any{
			"status":        enums.JobStatusFailed,
			"attempts":      attempts + 1,
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// OrdersWithoutJobs finds live orders past the grace period that own no fulfillment job.
func (r *repository) OrdersWithoutJobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusProcessing}).
		Where("created_at < ?", createdBefore).
		Where("NOT EXISTS (SELECT 1 FROM fulfillment_jobs j WHERE j.order_id = orders.id)").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
