package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/internal/notifications"
	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
)

const defaultWarningThresholdPct = 80

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, input notifications.Input) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// LedgerParams wires the quota ledger.
type LedgerParams struct {
	Repo     Repository
	DB       txRunner
	Notifier notifier
	Outbox   eventEmitter
	Config   config.QuotaConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

// Ledger enforces subscription limits and keeps usage counters in step with the data they meter.
type Ledger struct {
	repo         Repository
	db           txRunner
	notifier     notifier
	outbox       eventEmitter
	thresholdPct int64
	logg         *logger.Logger
	now          func() time.Time
}

func NewLedger(params LedgerParams) (*Ledger, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quota repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	pct := int64(params.Config.WarningThresholdPct)
	if pct <= 0 || pct > 100 {
		pct = defaultWarningThresholdPct
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		repo:         params.Repo,
		db:           params.DB,
		notifier:     params.Notifier,
		outbox:       params.Outbox,
		thresholdPct: pct,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// Usage is a resource's current consumption against its limit.
type Usage struct {
	Resource  enums.QuotaResource `json:"resource"`
	Used      int64               `json:"used"`
	Limit     int64               `json:"limit"`
	Unlimited bool                `json:"unlimited"`
}

// UsageOf returns the counter and the effective limit of a resource. Storage is reported in bytes.
func UsageOf(sub models.Subscription, resource enums.QuotaResource) (Usage, error) {
	m, err := meterFor(resource)
	if err != nil {
		return Usage{}, err
	}
	var used, limit int64
	switch resource {
	case enums.ResourceOrders:
		used, limit = sub.OrdersThisMonth, sub.MaxOrdersPerMonth
	case enums.ResourceProducts:
		used, limit = sub.ProductsCount, sub.MaxProducts
	case enums.ResourceAPICalls:
		used, limit = sub.APICallsThisMonth, sub.MaxAPICallsPerMonth
	case enums.ResourceStorage:
		used, limit = sub.StorageBytes, sub.MaxStorageMB
	}
	if limit == models.Unlimited {
		return Usage{Resource: resource, Used: used, Limit: models.Unlimited, Unlimited: true}, nil
	}
	return Usage{Resource: resource, Used: used, Limit: limit * m.limitScale}, nil
}

func limitReached(u Usage) error {
	return pkgerrors.New(pkgerrors.CodeLimitReached, fmt.Sprintf("%s limit reached", u.Resource)).
		WithDetails(map[string]any{
			"resource": u.Resource,
			"limit":    u.Limit,
			"usage":    u.Used,
		})
}

// Check rejects a delta that would push usage past a finite limit. It never writes.
func (l *Ledger) Check(_ context.Context, sub models.Subscription, resource enums.QuotaResource, delta int64) error {
	usage, err := UsageOf(sub, resource)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown resource")
	}
	if usage.Unlimited {
		return nil
	}
	if usage.Used+delta > usage.Limit {
		return limitReached(usage)
	}
	return nil
}

// Increment atomically adds delta to the counter and returns the updated subscription.
func (l *Ledger) Increment(ctx context.Context, subscriptionID uuid.UUID, resource enums.QuotaResource, delta int64) (models.Subscription, error) {
	found, err := l.repo.Increment(ctx, subscriptionID, resource, delta, l.now().UTC())
	if err != nil {
		return models.Subscription{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment usage")
	}
	if !found {
		return models.Subscription{}, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return l.load(ctx, subscriptionID)
}

// Reserve consumes delta only if it fits under the limit, in one conditional UPDATE.
func (l *Ledger) Reserve(ctx context.Context, subscriptionID uuid.UUID, resource enums.QuotaResource, delta int64) error {
	ok, err := l.repo.Reserve(ctx, subscriptionID, resource, delta, l.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve usage")
	}
	if ok {
		return nil
	}
	sub, err := l.load(ctx, subscriptionID)
	if err != nil {
		return err
	}
	usage, err := UsageOf(sub, resource)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown resource")
	}
	return limitReached(usage)
}

// ForStore resolves the subscription of a store.
func (l *Ledger) ForStore(ctx context.Context, storeID uuid.UUID) (models.Subscription, error) {
	sub, err := l.repo.FindByStoreID(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Subscription{}, pkgerrors.New(pkgerrors.CodeForbidden, "store has no subscription")
		}
		return models.Subscription{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return *sub, nil
}

// Report lists every metered resource of a store's subscription.
func (l *Ledger) Report(ctx context.Context, storeID uuid.UUID) (models.Subscription, []Usage, error) {
	sub, err := l.ForStore(ctx, storeID)
	if err != nil {
		return models.Subscription{}, nil, err
	}
	return sub, Snapshot(sub), nil
}

// Snapshot lists the usage of every metered resource in a stable order.
func Snapshot(sub models.Subscription) []Usage {
	report := make([]Usage, 0, len(meters))
	for _, resource := range []enums.QuotaResource{enums.ResourceOrders, enums.ResourceProducts, enums.ResourceAPICalls, enums.ResourceStorage} {
		usage, _ := UsageOf(sub, resource)
		report = append(report, usage)
	}
	return report
}

// CheckThreshold warns the store owner once per period when usage crosses the warning threshold.
// It reports whether a warning was sent.
func (l *Ledger) CheckThreshold(ctx context.Context, sub models.Subscription, resource enums.QuotaResource) (bool, error) {
	usage, err := UsageOf(sub, resource)
	if err != nil || usage.Unlimited || usage.Limit <= 0 {
		return false, err
	}
	if usage.Used*100 < usage.Limit*l.thresholdPct {
		return false, nil
	}
	if sub.WarningNotifiedAt != nil && !sub.WarningNotifiedAt.Before(sub.PeriodStart) {
		return false, nil
	}

	claimed, err := l.repo.ClaimWarning(ctx, sub.ID, l.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp quota warning")
	}
	if !claimed || l.notifier == nil {
		return claimed, nil
	}

	owner, err := l.repo.StoreOwner(ctx, sub.StoreID)
	if err != nil {
		return true, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve store owner")
	}
	storeID := sub.StoreID
	pct := usage.Used * 100 / usage.Limit
	err = l.notifier.Notify(ctx, notifications.Input{
		UserID:  owner,
		StoreID: &storeID,
		Type:    enums.NotificationTypeQuotaWarning,
		Title:   "Approaching your plan limit",
		Message: fmt.Sprintf("You have used %d%% of your %s allowance (%d of %d).", pct, resource, usage.Used, usage.Limit),
		Link:    "/settings/subscription",
	})
	return true, err
}

// Reconcile recomputes the derived counters from source data. Running it twice yields the same row.
func (l *Ledger) Reconcile(ctx context.Context, subscriptionID uuid.UUID) (models.Subscription, error) {
	var out models.Subscription
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		found, err := repo.Recompute(ctx, subscriptionID, l.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute usage")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		sub, err := repo.FindByID(ctx, subscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload subscription")
		}
		out = *sub
		if l.outbox == nil {
			return nil
		}
		return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuotaReconciled,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Actor:         &outbox.ActorRef{Source: "quota-reconcile"},
			Data: outbox.QuotaEvent{
				SubscriptionID:    sub.ID,
				StoreID:           sub.StoreID,
				OrdersThisMonth:   sub.OrdersThisMonth,
				ProductsCount:     sub.ProductsCount,
				StorageBytes:      sub.StorageBytes,
				APICallsThisMonth: sub.APICallsThisMonth,
			},
		})
	})
	return out, err
}

// ResetExpiredPeriods rolls every subscription whose period has ended and zeroes its monthly counters.
func (l *Ledger) ResetExpiredPeriods(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	now := l.now().UTC()
	expired, err := l.repo.ListExpired(ctx, now, batch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired subscriptions")
	}

	var (
		rolled int
		errs   error
	)
	for _, sub := range expired {
		start, end := NextPeriod(sub.PeriodStart, sub.PeriodEnd, now)
		ok, err := l.repo.RollPeriod(ctx, sub.ID, start, end, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if ok {
			rolled++
		}
	}
	return rolled, errs
}

// NextPeriod advances a billing window by whole months until it contains now.
func NextPeriod(start, end, now time.Time) (time.Time, time.Time) {
	if !end.After(start) {
		start = end
		end = start.AddDate(0, 1, 0)
	}
	for !end.After(now) {
		start = end
		end = end.AddDate(0, 1, 0)
	}
	return start, end
}

// ReconcileAll walks every subscription in id order, collecting per-subscription failures.
func (l *Ledger) ReconcileAll(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	var (
		after uuid.UUID
		count int
		errs  error
	)
	for {
		ids, err := l.repo.ListIDs(ctx, after, batch)
		if err != nil {
			return count, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions"))
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				return count, multierr.Append(errs, ctx.Err())
			}
			if _, err := l.Reconcile(ctx, id); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", id, err))
				continue
			}
			count++
		}
		if len(ids) < batch {
			return count, errs
		}
		after = ids[len(ids)-1]
	}
}

func (l *Ledger) load(ctx context.Context, id uuid.UUID) (models.Subscription, error) {
	sub, err := l.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Subscription{}, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return models.Subscription{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return *sub, nil
}
