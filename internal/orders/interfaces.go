package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, items and fulfillment jobs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByStoreExternal(ctx context.Context, storeID uuid.UUID, externalOrderID string) (*models.Order, error)
	FindByPlatformExternal(ctx context.Context, platform enums.Platform, externalOrderID string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	CreateJobs(ctx context.Context, jobs []models.FulfillmentJob) error
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListJobs(ctx context.Context, orderID uuid.UUID) ([]models.FulfillmentJob, error)
	UpdateItem(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CancelItems(ctx context.Context, itemIDs []uuid.UUID, at time.Time) error
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	SetJobsProvider(ctx context.Context, orderID, providerID uuid.UUID) error
	List(ctx context.Context, filters Filters, limit int, cursor *pagination.Cursor) ([]models.Order, error)
}
