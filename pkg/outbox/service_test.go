package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
)

func openOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`).Error)
	require.NoError(t, conn.Exec(`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`).Error)
	return conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := openOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	orderID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          OrderEvent{OrderID: orderID, Status: "created", TotalCents: 1500},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderCreated, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.True(t, envelope.OccurredAt.Equal(svc.now()))
	var data OrderEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, int64(1500), data.TotalCents)
}

func TestEmitRejectsUnknownTypesAndMissingTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder})
	assert.Error(t, err)

	conn := openOutboxDB(t)
	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: "order.exploded", AggregateType: enums.AggregateOrder})
	assert.Error(t, err)
}

func TestRepositoryFetchAndMark(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublished(conn, rows[0].ID, time.Now()))
	require.NoError(t, repo.MarkFailed(conn, rows[1].ID, fmt.Errorf("boom")))
	require.NoError(t, repo.MarkFailed(conn, rows[1].ID, fmt.Errorf("boom again")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1, "published and exhausted rows are skipped")
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			ID:            ids[i],
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
		}))
	}
	require.NoError(t, repo.MarkPublished(conn, ids[0], now.Add(-60*24*time.Hour)))
	require.NoError(t, repo.MarkPublished(conn, ids[1], now.Add(-time.Hour)))

	deleted, err := repo.DeletePublishedBefore(conn, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining, "recent and unpublished rows survive")
}

func TestRepositoryMarkTerminalParksRow(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventJobExhausted,
		AggregateType: enums.AggregateFulfillmentJob,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, repo.Insert(conn, event))

	require.NoError(t, repo.MarkTerminal(conn, event.ID, fmt.Errorf("unsupported"), 10))
	require.NoError(t, repo.InsertDLQ(conn, models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		FailedAt:      time.Now().UTC(),
	}))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var dlqCount int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&dlqCount).Error)
	assert.Equal(t, int64(1), dlqCount)
}
