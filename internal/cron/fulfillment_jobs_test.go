package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkroute/inkroute-backend/internal/fulfillment"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

type fakePoller struct {
	stats fulfillment.DispatchStats
	err   error
	calls int
}

func (f *fakePoller) DispatchDue(context.Context) (fulfillment.DispatchStats, error) {
	f.calls++
	return f.stats, f.err
}

type fakeSweeper struct {
	stats fulfillment.SweepStats
	err   error
}

func (f *fakeSweeper) Sweep(context.Context) (fulfillment.SweepStats, error) {
	return f.stats, f.err
}

type fakeReconciler struct {
	resetErr     error
	reconcileErr error
	resets       int
	reconciles   int
	batch        int
}

func (f *fakeReconciler) ResetExpiredPeriods(_ context.Context, batch int) (int, error) {
	f.resets++
	f.batch = batch
	return 2, f.resetErr
}

func (f *fakeReconciler) ReconcileAll(_ context.Context, batch int) (int, error) {
	f.reconciles++
	return 5, f.reconcileErr
}

func TestFulfillmentDispatchJob(t *testing.T) {
	poller := &fakePoller{stats: fulfillment.DispatchStats{Submitted: 3, Retrying: 1}}
	job, err := NewFulfillmentDispatchJob(logger.Nop(), poller)
	require.NoError(t, err)
	assert.Equal(t, "fulfillment-dispatch", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, poller.calls)

	poller.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))

	_, err = NewFulfillmentDispatchJob(logger.Nop(), nil)
	assert.Error(t, err)
}

func TestOrphanSweepJob(t *testing.T) {
	job, err := NewOrphanSweepJob(logger.Nop(), &fakeSweeper{stats: fulfillment.SweepStats{Repaired: 1, Orphaned: 1}})
	require.NoError(t, err)
	assert.Equal(t, "orphan-order-sweep", job.Name())
	require.NoError(t, job.Run(context.Background()))

	job, err = NewOrphanSweepJob(logger.Nop(), &fakeSweeper{err: errors.New("boom")})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}

func TestQuotaReconcileJobRunsBothPassesAndCollectsErrors(t *testing.T) {
	ledger := &fakeReconciler{resetErr: errors.New("roll failed")}
	job, err := NewQuotaReconcileJob(QuotaReconcileJobParams{Logger: logger.Nop(), Ledger: ledger, ReconcileAll: true})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roll failed")
	assert.Equal(t, 1, ledger.resets)
	assert.Equal(t, 1, ledger.reconciles, "a failed reset must not skip reconciliation")
	assert.Equal(t, 100, ledger.batch)
}

func TestQuotaReconcileJobSkipsFullRecountWhenDisabled(t *testing.T) {
	ledger := &fakeReconciler{}
	job, err := NewQuotaReconcileJob(QuotaReconcileJobParams{Logger: logger.Nop(), Ledger: ledger, BatchSize: 10})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, ledger.reconciles)
	assert.Equal(t, 10, ledger.batch)
}
