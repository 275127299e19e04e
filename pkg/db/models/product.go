package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/enums"
)

// Product is a merchant's custom product built from a design.
type Product struct {
	ID             uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	DesignID       *uuid.UUID          `gorm:"column:design_id;type:uuid"`
	Name           string              `gorm:"column:name;not null"`
	ProductType    string              `gorm:"column:product_type;not null"`
	BasePriceCents int64               `gorm:"column:base_price_cents;not null"`
	MockupBytes    int64               `gorm:"column:mockup_bytes;not null;default:0"`
	Status         enums.ProductStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductExternalRef links a product to its listing on a connected storefront.
type ProductExternalRef struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID         uuid.UUID      `gorm:"column:product_id;type:uuid;not null"`
	StoreID           uuid.UUID      `gorm:"column:store_id;type:uuid;not null"`
	Platform          enums.Platform `gorm:"column:platform;type:text;not null"`
	ExternalProductID string         `gorm:"column:external_product_id;not null"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// Design is an uploaded artwork file. Only its size is tracked here.
type Design struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Name          string    `gorm:"column:name;not null"`
	FileSizeBytes int64     `gorm:"column:file_size_bytes;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
