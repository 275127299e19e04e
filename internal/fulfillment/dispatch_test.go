package fulfillment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
)

type failingDispatcher struct {
	calls   int
	message string
}

func (d *failingDispatcher) Dispatch(context.Context, *gorm.DB, models.FulfillmentJob) error {
	d.calls++
	if d.message != "" {
		return errors.New(d.message)
	}
	return errors.New("provider api unavailable")
}

func (f *fixture) poller(t *testing.T, dispatcher Dispatcher) *Poller {
	t.Helper()
	outboxSvc := outbox.NewService(outbox.NewRepository(f.conn), nil)
	if dispatcher == nil {
		dispatcher = NewOutboxDispatcher(outboxSvc)
	}
	p, err := NewPoller(PollerParams{
		Repo:       NewRepository(f.conn),
		DB:         db.FromGorm(f.conn),
		Dispatcher: dispatcher,
		Outbox:     outboxSvc,
		Config:     config.FulfillmentConfig{RetryBaseDelay: time.Minute, RetryMaxDelay: time.Hour, DispatchBatchSize: 10},
		Logger:     logger.Nop(),
		Now:        func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) assign(t *testing.T, orderID uuid.UUID) {
	t.Helper()
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", orderID).
		Update("assigned_provider_id", f.provider.ID).Error)
}

func (f *fixture) loadJobs(t *testing.T, orderID uuid.UUID) []models.FulfillmentJob {
	t.Helper()
	var jobs []models.FulfillmentJob
	require.NoError(t, f.conn.Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&jobs).Error)
	return jobs
}

func TestDispatchDueSubmitsAssignedJobs(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusCreated)
	f.assign(t, order.ID)
	unassigned := f.seedOrder(t, enums.OrderStatusCreated)
	cancelled := f.seedOrder(t, enums.OrderStatusCancelled)
	f.assign(t, cancelled.ID)

	stats, err := f.poller(t, nil).DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Submitted: 2}, stats)

	for _, job := range f.loadJobs(t, order.ID) {
		assert.Equal(t, enums.JobStatusSubmitted, job.Status)
		assert.Equal(t, 1, job.Attempts)
		assert.Nil(t, job.NextRetryAt)
	}
	stored := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusProcessing, stored.Status)
	for _, item := range stored.Items {
		assert.Equal(t, enums.ItemFulfillmentProcessing, item.FulfillmentStatus)
	}
	assert.Equal(t, int64(2), f.events(t, enums.EventJobSubmitted))

	for _, job := range f.loadJobs(t, unassigned.ID) {
		assert.Equal(t, enums.JobStatusPending, job.Status)
	}
	for _, job := range f.loadJobs(t, cancelled.ID) {
		assert.Equal(t, 0, job.Attempts)
	}

	stats, err = f.poller(t, nil).DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{}, stats)
}

func TestDispatchFailureSchedulesBackoffThenExhausts(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusCreated)
	f.assign(t, order.ID)
	dispatcher := &failingDispatcher{}
	ctx := context.Background()

	stats, err := f.poller(t, dispatcher).DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Retrying: 2}, stats)
	for _, job := range f.loadJobs(t, order.ID) {
		assert.Equal(t, enums.JobStatusFailed, job.Status)
		assert.Equal(t, 1, job.Attempts)
		require.NotNil(t, job.LastError)
		assert.Equal(t, "provider api unavailable", *job.LastError)
		require.NotNil(t, job.NextRetryAt)
		wait := job.NextRetryAt.Sub(f.now)
		assert.GreaterOrEqual(t, wait, 54*time.Second)
		assert.LessOrEqual(t, wait, 66*time.Second)
	}
	assert.Equal(t, enums.OrderStatusCreated, f.reload(t, order.ID).Status)

	// Not due yet.
	stats, err = f.poller(t, dispatcher).DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{}, stats)

	f.now = f.now.Add(2 * time.Minute)
	stats, err = f.poller(t, dispatcher).DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Retrying: 2}, stats)
	for _, job := range f.loadJobs(t, order.ID) {
		assert.Equal(t, 2, job.Attempts)
		wait := job.NextRetryAt.Sub(f.now)
		assert.GreaterOrEqual(t, wait, 108*time.Second)
		assert.LessOrEqual(t, wait, 132*time.Second)
	}

	f.now = f.now.Add(5 * time.Minute)
	stats, err = f.poller(t, dispatcher).DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Exhausted: 2}, stats)
	for _, job := range f.loadJobs(t, order.ID) {
		assert.Equal(t, enums.JobStatusFailed, job.Status)
		assert.Equal(t, 3, job.Attempts)
		assert.Nil(t, job.NextRetryAt)
	}
	assert.Equal(t, int64(2), f.events(t, enums.EventJobExhausted))

	f.now = f.now.Add(24 * time.Hour)
	stats, err = f.poller(t, dispatcher).DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{}, stats)
	assert.Equal(t, 6, dispatcher.calls)
}

func TestDispatchOrderSubmitsPendingJobsOnly(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusProcessing)
	jobs := f.loadJobs(t, order.ID)
	require.NoError(t, f.conn.Model(&models.FulfillmentJob{}).Where("id = ?", jobs[0].ID).
		Update("status", enums.JobStatusInProduction).Error)

	stats, err := f.poller(t, nil).DispatchOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Submitted: 1}, stats)
}

func TestDispatchFailureStoresValidUTF8Error(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusCreated)
	f.assign(t, order.ID)
	// 999 ASCII bytes put the cap in the middle of the first two-byte rune.
	dispatcher := &failingDispatcher{message: strings.Repeat("x", maxLastErrorLength-1) + strings.Repeat("é", 10)}

	_, err := f.poller(t, dispatcher).DispatchDue(context.Background())
	require.NoError(t, err)
	for _, job := range f.loadJobs(t, order.ID) {
		require.NotNil(t, job.LastError)
		assert.True(t, utf8.ValidString(*job.LastError))
		assert.Len(t, *job.LastError, maxLastErrorLength-1)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("abé", 3))
	assert.Equal(t, "abé", truncate("abé", 4))
	assert.Equal(t, "", truncate("日本", 2))
	assert.Equal(t, "日", truncate("日本", 5))

	got := truncate("ok\xff\xfe", 10)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "ok\uFFFD", got)
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	f := newFixture(t)
	p := f.poller(t, nil)

	within := func(got, want time.Duration) {
		t.Helper()
		low := time.Duration(float64(want) * 0.9)
		high := time.Duration(float64(want) * 1.1)
		assert.GreaterOrEqual(t, got, low)
		assert.LessOrEqual(t, got, high)
	}
	within(p.RetryDelay(0), time.Minute)
	within(p.RetryDelay(1), 2*time.Minute)
	within(p.RetryDelay(3), 8*time.Minute)
	assert.Equal(t, time.Hour, p.RetryDelay(12))
}

func TestSweepRepairsAndFailsOrphans(t *testing.T) {
	f := newFixture(t)
	withItems := f.seedOrder(t, enums.OrderStatusCreated)
	require.NoError(t, f.conn.Where("order_id = ?", withItems.ID).Delete(&models.FulfillmentJob{}).Error)
	f.assign(t, withItems.ID)

	empty := f.seedOrder(t, enums.OrderStatusCreated)
	require.NoError(t, f.conn.Where("order_id = ?", empty.ID).Delete(&models.FulfillmentJob{}).Error)
	require.NoError(t, f.conn.Where("order_id = ?", empty.ID).Delete(&models.OrderItem{}).Error)

	fresh := f.seedOrder(t, enums.OrderStatusCreated)
	require.NoError(t, f.conn.Where("order_id = ?", fresh.ID).Delete(&models.FulfillmentJob{}).Error)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", fresh.ID).Update("created_at", f.now).Error)

	sweeper, err := NewSweeper(SweeperParams{
		Repo:        NewRepository(f.conn),
		DB:          db.FromGorm(f.conn),
		Outbox:      outbox.NewService(outbox.NewRepository(f.conn), nil),
		Grace:       15 * time.Minute,
		MaxAttempts: 3,
		Logger:      logger.Nop(),
		Now:         func() time.Time { return f.now },
	})
	require.NoError(t, err)

	stats, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Repaired: 1, Orphaned: 1}, stats)

	repaired := f.loadJobs(t, withItems.ID)
	require.Len(t, repaired, 2)
	for _, job := range repaired {
		assert.Equal(t, enums.JobStatusPending, job.Status)
		require.NotNil(t, job.ProviderID)
		assert.Equal(t, f.provider.ID, *job.ProviderID)
	}
	assert.Equal(t, enums.OrderStatusFailed, f.reload(t, empty.ID).Status)
	assert.Equal(t, int64(1), f.events(t, enums.EventOrderOrphaned))
	assert.Empty(t, f.loadJobs(t, fresh.ID))

	stats, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{}, stats)
}
