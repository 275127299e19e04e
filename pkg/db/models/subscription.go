package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/enums"
)

// Unlimited marks a subscription limit without a ceiling.
const Unlimited = -1

// Subscription is the single plan record of a store, with per-resource limits and usage counters.
type Subscription struct {
	ID                  uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID             uuid.UUID                `gorm:"column:store_id;type:uuid;not null;uniqueIndex"`
	Plan                string                   `gorm:"column:plan;not null"`
	Status              enums.SubscriptionStatus `gorm:"column:status;type:text;not null;default:'active'"`
	PeriodStart         time.Time                `gorm:"column:period_start;not null"`
	PeriodEnd           time.Time                `gorm:"column:period_end;not null"`
	MaxOrdersPerMonth   int64                    `gorm:"column:max_orders_per_month;not null"`
	MaxProducts         int64                    `gorm:"column:max_products;not null"`
	MaxAPICallsPerMonth int64                    `gorm:"column:max_api_calls_per_month;not null"`
	MaxStorageMB        int64                    `gorm:"column:max_storage_mb;not null"`
	OrdersThisMonth     int64                    `gorm:"column:orders_this_month;not null;default:0"`
	ProductsCount       int64                    `gorm:"column:products_count;not null;default:0"`
	APICallsThisMonth   int64                    `gorm:"column:api_calls_this_month;not null;default:0"`
	StorageBytes        int64                    `gorm:"column:storage_bytes;not null;default:0"`
	WarningNotifiedAt   *time.Time               `gorm:"column:warning_notified_at"`
	LastReconciledAt    *time.Time               `gorm:"column:last_reconciled_at"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
