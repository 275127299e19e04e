package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/enums"
)

// Store is a connected storefront. API access is granted through a prefixed key whose
// secret part is only kept as an argon2id hash.
type Store struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerUserID   uuid.UUID       `gorm:"column:owner_user_id;type:uuid;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	Platform      enums.Platform  `gorm:"column:platform;type:text;not null"`
	ShopDomain    *string         `gorm:"column:shop_domain"`
	APIKeyPrefix  *string         `gorm:"column:api_key_prefix;uniqueIndex"`
	APIKeyHash    *string         `gorm:"column:api_key_hash"`
	WebhookSecret string          `gorm:"column:webhook_secret;not null"`
	Credentials   json.RawMessage `gorm:"column:platform_credentials;type:jsonb"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
