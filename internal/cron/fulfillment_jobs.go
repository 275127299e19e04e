package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/inkroute/inkroute-backend/internal/fulfillment"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

type duePoller interface {
	DispatchDue(ctx context.Context) (fulfillment.DispatchStats, error)
}

type orphanSweeper interface {
	Sweep(ctx context.Context) (fulfillment.SweepStats, error)
}

type subscriptionReconciler interface {
	ResetExpiredPeriods(ctx context.Context, batch int) (int, error)
	ReconcileAll(ctx context.Context, batch int) (int, error)
}

// NewFulfillmentDispatchJob submits due fulfillment jobs and schedules retries.
func NewFulfillmentDispatchJob(logg *logger.Logger, poller duePoller) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if poller == nil {
		return nil, fmt.Errorf("poller required")
	}
	return &fulfillmentDispatchJob{logg: logg, poller: poller}, nil
}

type fulfillmentDispatchJob struct {
	logg   *logger.Logger
	poller duePoller
}

func (j *fulfillmentDispatchJob) Name() string { return "fulfillment-dispatch" }

func (j *fulfillmentDispatchJob) Run(ctx context.Context) error {
	stats, err := j.poller.DispatchDue(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"submitted": stats.Submitted,
		"retrying":  stats.Retrying,
		"exhausted": stats.Exhausted,
		"skipped":   stats.Skipped,
	})
	if err != nil {
		return fmt.Errorf("dispatch due jobs: %w", err)
	}
	if stats.Submitted+stats.Retrying+stats.Exhausted > 0 {
		j.logg.Info(logCtx, "fulfillment dispatch pass complete")
	}
	return nil
}

// NewOrphanSweepJob repairs orders stored without fulfillment jobs.
func NewOrphanSweepJob(logg *logger.Logger, sweeper orphanSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &orphanSweepJob{logg: logg, sweeper: sweeper}, nil
}

type orphanSweepJob struct {
	logg    *logger.Logger
	sweeper orphanSweeper
}

func (j *orphanSweepJob) Name() string { return "orphan-order-sweep" }

func (j *orphanSweepJob) Run(ctx context.Context) error {
	stats, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep orphaned orders: %w", err)
	}
	if stats.Repaired+stats.Orphaned > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"repaired": stats.Repaired,
			"orphaned": stats.Orphaned,
		}), "orphan sweep complete")
	}
	return nil
}

// QuotaReconcileJobParams configures the quota reconcile cron job.
type QuotaReconcileJobParams struct {
	Logger       *logger.Logger
	Ledger       subscriptionReconciler
	BatchSize    int
	ReconcileAll bool
}

// NewQuotaReconcileJob rolls expired billing periods and, when enabled, recounts every
// subscription's stored usage from source rows.
func NewQuotaReconcileJob(params QuotaReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("quota ledger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &quotaReconcileJob{
		logg:         params.Logger,
		ledger:       params.Ledger,
		batch:        batch,
		reconcileAll: params.ReconcileAll,
	}, nil
}

type quotaReconcileJob struct {
	logg         *logger.Logger
	ledger       subscriptionReconciler
	batch        int
	reconcileAll bool
}

func (j *quotaReconcileJob) Name() string { return "quota-reconcile" }

func (j *quotaReconcileJob) Run(ctx context.Context) error {
	var errs error
	rolled, err := j.ledger.ResetExpiredPeriods(ctx, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("reset expired periods: %w", err))
	}
	reconciled := 0
	if j.reconcileAll {
		reconciled, err = j.ledger.ReconcileAll(ctx, j.batch)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile subscriptions: %w", err))
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"periods_rolled": rolled,
		"reconciled":     reconciled,
	}), "quota reconcile complete")
	return errs
}
