package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/metrics"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
)

const (
	defaultDispatchBatch  = 50
	defaultRetryBaseDelay = time.Minute
	defaultRetryMaxDelay  = time.Hour
	retryJitterPercent    = 10
	maxLastErrorLength    = 1000
)

// errJobTaken rolls back a dispatch whose job was already moved on by another worker.
var errJobTaken = errors.New("fulfillment job already handled")

// Dispatcher hands one job to its provider. tx is open for the duration of the call so
// dispatchers that only record intent can do so atomically with the job update.
type Dispatcher interface {
	Dispatch(ctx context.Context, tx *gorm.DB, job models.FulfillmentJob) error
}

// OutboxDispatcher records fulfillment.job_submitted for downstream provider integrations.
type OutboxDispatcher struct {
	outbox outboxPublisher
}

func NewOutboxDispatcher(publisher outboxPublisher) *OutboxDispatcher {
	return &OutboxDispatcher{outbox: publisher}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, tx *gorm.DB, job models.FulfillmentJob) error {
	return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventJobSubmitted,
		AggregateType: enums.AggregateFulfillmentJob,
		AggregateID:   job.ID,
		Actor:         &outbox.ActorRef{Source: "fulfillment-dispatch"},
		Data:          jobEvent(job, job.Attempts+1, ""),
	})
}

// DispatchStats summarises one poller pass.
type DispatchStats struct {
	Submitted int
	Retrying  int
	Exhausted int
	Skipped   int
}

func (d *DispatchStats) add(other DispatchStats) {
	d.Submitted += other.Submitted
	d.Retrying += other.Retrying
	d.Exhausted += other.Exhausted
	d.Skipped += other.Skipped
}

type PollerParams struct {
	Repo       Repository
	DB         txRunner
	Dispatcher Dispatcher
	Outbox     outboxPublisher
	Metrics    *metrics.PipelineMetrics
	Config     config.FulfillmentConfig
	Logger     *logger.Logger
	Now        func() time.Time
}

// Poller submits due fulfillment jobs and schedules retries with exponential backoff.
type Poller struct {
	repo       Repository
	db         txRunner
	dispatcher Dispatcher
	outbox     outboxPublisher
	metrics    *metrics.PipelineMetrics
	batch      int
	base       time.Duration
	maxDelay   time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

func NewPoller(params PollerParams) (*Poller, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("fulfillment repository required")
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	p := &Poller{
		repo:       params.Repo,
		db:         params.DB,
		dispatcher: params.Dispatcher,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		batch:      params.Config.DispatchBatchSize,
		base:       params.Config.RetryBaseDelay,
		maxDelay:   params.Config.RetryMaxDelay,
		logg:       params.Logger,
		now:        params.Now,
	}
	if p.batch <= 0 {
		p.batch = defaultDispatchBatch
	}
	if p.base <= 0 {
		p.base = defaultRetryBaseDelay
	}
	if p.maxDelay < p.base {
		p.maxDelay = defaultRetryMaxDelay
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// DispatchDue attempts every job whose retry time has come, up to one batch.
func (p *Poller) DispatchDue(ctx context.Context) (DispatchStats, error) {
	jobs, err := p.repo.DueJobs(ctx, p.now().UTC(), p.batch)
	if err != nil {
		return DispatchStats{}, fmt.Errorf("load due jobs: %w", err)
	}
	return p.dispatchAll(ctx, jobs)
}

// DispatchOrder submits the untried jobs of one order immediately.
func (p *Poller) DispatchOrder(ctx context.Context, orderID uuid.UUID) (DispatchStats, error) {
	jobs, err := p.repo.PendingJobs(ctx, orderID)
	if err != nil {
		return DispatchStats{}, fmt.Errorf("load pending jobs: %w", err)
	}
	return p.dispatchAll(ctx, jobs)
}

func (p *Poller) dispatchAll(ctx context.Context, jobs []models.FulfillmentJob) (DispatchStats, error) {
	var stats DispatchStats
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		one, err := p.dispatch(ctx, job)
		if err != nil {
			return stats, err
		}
		stats.add(one)
	}
	return stats, nil
}

func (p *Poller) dispatch(ctx context.Context, job models.FulfillmentJob) (DispatchStats, error) {
	ctx = p.logg.WithOrderID(ctx, job.OrderID.String())
	ctx = p.logg.WithField(ctx, "job_id", job.ID.String())
	now := p.now().UTC()

	dispatchErr := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := p.dispatcher.Dispatch(ctx, tx, job); err != nil {
			return err
		}
		repo := p.repo.WithTx(tx)
		ok, err := repo.MarkJobSubmitted(ctx, job.ID, job.Attempts, now)
		if err != nil {
			return err
		}
		if !ok {
			return errJobTaken
		}
		if _, err := repo.TransitionOrder(ctx, job.OrderID, []enums.OrderStatus{enums.OrderStatusCreated}, map[string]any{
			"status":     enums.OrderStatusProcessing,
			"updated_at": now,
		}); err != nil {
			return err
		}
		return repo.SetItemStatus(ctx, job.OrderItemID, []enums.ItemFulfillmentStatus{enums.ItemFulfillmentPending}, enums.ItemFulfillmentProcessing, now)
	})
	if errors.Is(dispatchErr, errJobTaken) {
		return DispatchStats{Skipped: 1}, nil
	}
	if dispatchErr == nil {
		p.metrics.Dispatched(metrics.DispatchSubmitted)
		p.logg.Debug(ctx, "fulfillment job submitted")
		return DispatchStats{Submitted: 1}, nil
	}

	return p.recordFailure(ctx, job, dispatchErr, now)
}

func (p *Poller) recordFailure(ctx context.Context, job models.FulfillmentJob, cause error, now time.Time) (DispatchStats, error) {
	attempts := job.Attempts + 1
	exhausted := attempts >= job.MaxAttempts
	var nextRetry *time.Time
	if !exhausted {
		at := now.Add(p.RetryDelay(job.Attempts))
		nextRetry = &at
	}
	lastError := truncate(cause.Error(), maxLastErrorLength)

	var marked bool
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := p.repo.WithTx(tx).MarkJobFailed(ctx, job.ID, job.Attempts, lastError, nextRetry, now)
		if err != nil || !ok {
			return err
		}
		marked = true
		if !exhausted {
			return nil
		}
		return p.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobExhausted,
			AggregateType: enums.AggregateFulfillmentJob,
			AggregateID:   job.ID,
			Actor:         &outbox.ActorRef{Source: "fulfillment-dispatch"},
			Data:          jobEvent(job, attempts, lastError),
		})
	})
	if err != nil {
		return DispatchStats{}, fmt.Errorf("record dispatch failure: %w", err)
	}
	if !marked {
		return DispatchStats{Skipped: 1}, nil
	}
	if exhausted {
		p.metrics.Dispatched(metrics.DispatchExhausted)
		p.logg.WarnErr(ctx, "fulfillment job exhausted its attempts", cause)
		return DispatchStats{Exhausted: 1}, nil
	}
	p.metrics.Dispatched(metrics.DispatchRetry)
	p.logg.WarnErr(ctx, "fulfillment job dispatch failed, retry scheduled", cause)
	return DispatchStats{Retrying: 1}, nil
}

// RetryDelay is the wait after a failure that followed priorAttempts earlier attempts:
// base * 2^priorAttempts with ±10% jitter, capped at the configured maximum.
func (p *Poller) RetryDelay(priorAttempts int) time.Duration {
	b := retry.WithCappedDuration(p.maxDelay, retry.WithJitterPercent(retryJitterPercent, retry.NewExponential(p.base)))
	var delay time.Duration
	for i := 0; i <= priorAttempts; i++ {
		delay, _ = b.Next()
	}
	return delay
}

func jobEvent(job models.FulfillmentJob, attempts int, lastError string) outbox.JobEvent {
	return outbox.JobEvent{
		JobID:       job.ID,
		OrderID:     job.OrderID,
		OrderItemID: job.OrderItemID,
		ProviderID:  job.ProviderID,
		Attempts:    attempts,
		LastError:   lastError,
	}
}

// truncate caps s at max bytes without splitting a rune. Postgres rejects invalid UTF-8 in text columns.
func truncate(s string, max int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
