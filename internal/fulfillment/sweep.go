package fulfillment

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
)

const (
	defaultOrphanGrace = 15 * time.Minute
	orphanReasonNoItem = "order has no items"
)

// SweepStats summarises one orphan sweep.
type SweepStats struct {
	Repaired int
	Orphaned int
}

type SweeperParams struct {
	Repo        Repository
	DB          txRunner
	Outbox      outboxPublisher
	Grace       time.Duration
	BatchSize   int
	MaxAttempts int
	Logger      *logger.Logger
	Now         func() time.Time
}

// Sweeper repairs orders that were stored without their fulfillment jobs.
type Sweeper struct {
	repo        Repository
	db          txRunner
	outbox      outboxPublisher
	grace       time.Duration
	batch       int
	maxAttempts int
	logg        *logger.Logger
	now         func() time.Time
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("fulfillment repository required")
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	s := &Sweeper{
		repo:        params.Repo,
		db:          params.DB,
		outbox:      params.Outbox,
		grace:       params.Grace,
		batch:       params.BatchSize,
		maxAttempts: params.MaxAttempts,
		logg:        params.Logger,
		now:         params.Now,
	}
	if s.grace <= 0 {
		s.grace = defaultOrphanGrace
	}
	if s.batch <= 0 {
		s.batch = defaultDispatchBatch
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Sweep creates missing jobs for orders with items. An order without items can never be
// fulfilled, so it is failed and announced once as order.orphaned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	now := s.now().UTC()
	rows, err := s.repo.OrdersWithoutJobs(ctx, now.Add(-s.grace), s.batch)
	if err != nil {
		return SweepStats{}, fmt.Errorf("load orders without jobs: %w", err)
	}

	var stats SweepStats
	for i := range rows {
		order := &rows[i]
		orderCtx := s.logg.WithOrderID(ctx, order.ID.String())
		if len(order.Items) > 0 {
			if err := s.repair(orderCtx, order, now); err != nil {
				return stats, err
			}
			stats.Repaired++
			s.logg.Info(orderCtx, "created missing fulfillment jobs")
			continue
		}
		if err := s.orphan(orderCtx, order, now); err != nil {
			return stats, err
		}
		stats.Orphaned++
		s.logg.Warn(orderCtx, "order has no items and was marked failed")
	}
	return stats, nil
}

func (s *Sweeper) repair(ctx context.Context, order *models.Order, now time.Time) error {
	jobs := orders.BuildJobs(order.ID, order.Items, order.AssignedProviderID, s.maxAttempts)
	for i := range jobs {
		jobs[i].CreatedAt = now
		jobs[i].UpdatedAt = now
	}
	if err := s.repo.CreateJobs(ctx, jobs); err != nil {
		return fmt.Errorf("create jobs for order %s: %w", order.ID, err)
	}
	return nil
}

func (s *Sweeper) orphan(ctx context.Context, order *models.Order, now time.Time) error {
	previous := order.Status
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionOrder(ctx, order.ID, []enums.OrderStatus{previous}, map[string]any{
			"status":     enums.OrderStatusFailed,
			"updated_at": now,
		})
		if err != nil {
			return fmt.Errorf("fail orphaned order %s: %w", order.ID, err)
		}
		if !ok {
			return nil
		}
		storeID := order.StoreID
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderOrphaned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{StoreID: &storeID, Source: "orphan-order-sweep"},
			Data: outbox.OrderEvent{
				OrderID:         order.ID,
				StoreID:         order.StoreID,
				Platform:        string(order.Platform),
				ExternalOrderID: order.ExternalOrderID,
				Status:          string(enums.OrderStatusFailed),
				PreviousStatus:  string(previous),
				TotalCents:      order.TotalCents,
				Reason:          orphanReasonNoItem,
			},
		})
	})
}
