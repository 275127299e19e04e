// Package audit records admin mutations with before/after snapshots.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
)

// Entry describes one audited change. Before and After are marshalled to JSON.
type Entry struct {
	ActorUserID uuid.UUID
	Action      string
	EntityType  string
	EntityID    uuid.UUID
	Before      any
	After       any
}

// Recorder writes audit rows.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record writes the entry using tx when given, so it commits with the change it describes.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("audit before: %w", err)
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return fmt.Errorf("audit after: %w", err)
	}
	row := models.AuditLog{
		ID:          uuid.New(),
		ActorUserID: entry.ActorUserID,
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Before:      before,
		After:       after,
	}
	return conn.WithContext(ctx).Create(&row).Error
}

// ForEntity lists the trail of one entity, oldest first.
func (r *Recorder) ForEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
