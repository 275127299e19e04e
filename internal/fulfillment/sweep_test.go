package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkroute/inkroute-backend/pkg/db"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
)

func (f *fixture) sweeper(t *testing.T) *Sweeper {
	t.Helper()
	s, err := NewSweeper(SweeperParams{
		Repo:        NewRepository(f.conn),
		DB:          db.FromGorm(f.conn),
		Outbox:      outbox.NewService(outbox.NewRepository(f.conn), nil),
		Grace:       15 * time.Minute,
		MaxAttempts: 3,
		Logger:      logger.Nop(),
		Now:         func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) dropJobs(t *testing.T, orderID uuid.UUID) {
	t.Helper()
	require.NoError(t, f.conn.Where("order_id = ?", orderID).Delete(&models.FulfillmentJob{}).Error)
}

func TestSweepRepairsAndOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missingJobs := f.seedOrder(t, enums.OrderStatusCreated)
	f.dropJobs(t, missingJobs.ID)

	noItems := f.seedOrder(t, enums.OrderStatusProcessing)
	f.dropJobs(t, noItems.ID)
	require.NoError(t, f.conn.Where("order_id = ?", noItems.ID).Delete(&models.OrderItem{}).Error)

	healthy := f.seedOrder(t, enums.OrderStatusCreated)

	stats, err := f.sweeper(t).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Repaired: 1, Orphaned: 1}, stats)

	jobs := f.loadJobs(t, missingJobs.ID)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, enums.JobStatusPending, job.Status)
		assert.Equal(t, 3, job.MaxAttempts)
	}
	assert.Equal(t, enums.OrderStatusCreated, f.reload(t, missingJobs.ID).Status)

	assert.Equal(t, enums.OrderStatusFailed, f.reload(t, noItems.ID).Status)
	assert.Equal(t, int64(1), f.events(t, enums.EventOrderOrphaned))

	assert.Len(t, f.loadJobs(t, healthy.ID), 2)

	again, err := f.sweeper(t).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{}, again)
	assert.Equal(t, int64(1), f.events(t, enums.EventOrderOrphaned))
}

func TestSweepSkipsOrdersInsideGracePeriod(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusCreated)
	f.dropJobs(t, order.ID)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("created_at", f.now.Add(-5*time.Minute)).Error)

	stats, err := f.sweeper(t).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{}, stats)
	assert.Empty(t, f.loadJobs(t, order.ID))
}

func TestSweepIgnoresTerminalOrders(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusCancelled)
	f.dropJobs(t, order.ID)

	stats, err := f.sweeper(t).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{}, stats)
	assert.Equal(t, enums.OrderStatusCancelled, f.reload(t, order.ID).Status)
}

func TestNewSweeperValidates(t *testing.T) {
	_, err := NewSweeper(SweeperParams{})
	require.Error(t, err)
}
