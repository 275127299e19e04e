// Package fulfillment drives an order and its items and jobs through the production lifecycle.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/internal/audit"
	"github.com/inkroute/inkroute-backend/internal/notifications"
	"github.com/inkroute/inkroute-backend/internal/platforms"
	"github.com/inkroute/inkroute-backend/internal/providers"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/metrics"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
)

const auditEntityOrder = "order"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type storeLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type providerLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
}

type quotaAdjuster interface {
	ForStore(ctx context.Context, storeID uuid.UUID) (models.Subscription, error)
	Increment(ctx context.Context, subscriptionID uuid.UUID, resource enums.QuotaResource, delta int64) (models.Subscription, error)
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type notifier interface {
	Notify(ctx context.Context, input notifications.Input) error
}

type statusSyncer interface {
	SyncStatus(ctx context.Context, order models.Order, update platforms.StatusUpdate)
}

type orderDispatcher interface {
	DispatchOrder(ctx context.Context, orderID uuid.UUID) (DispatchStats, error)
}

// Actor is the authenticated caller of a state transition.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// Tracking is the carrier information stamped on a shipped order.
type Tracking struct {
	Number  string `json:"tracking_number" validate:"required"`
	URL     string `json:"tracking_url,omitempty" validate:"omitempty,url"`
	Carrier string `json:"carrier,omitempty"`
}

// Service applies order status transitions and their cascades.
type Service interface {
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	UpdateTracking(ctx context.Context, actor Actor, orderID uuid.UUID, tracking Tracking) (*models.Order, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	AssignProvider(ctx context.Context, actor Actor, orderID, providerID uuid.UUID) (*models.Order, error)
}

type ServiceParams struct {
	Repo      Repository
	DB        txRunner
	Stores    storeLoader
	Providers providerLookup
	Quota     quotaAdjuster
	Outbox    outboxPublisher
	Audit     auditRecorder
	Notifier  notifier
	Sync      statusSyncer
	Jobs      orderDispatcher
	Metrics   *metrics.PipelineMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	db        txRunner
	stores    storeLoader
	providers providerLookup
	quota     quotaAdjuster
	outbox    outboxPublisher
	audit     auditRecorder
	notifier  notifier
	sync      statusSyncer
	jobs      orderDispatcher
	metrics   *metrics.PipelineMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("fulfillment repository required")
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Stores == nil:
		return nil, fmt.Errorf("store loader required")
	case params.Providers == nil:
		return nil, fmt.Errorf("provider lookup required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit recorder required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		db:        params.DB,
		stores:    params.Stores,
		providers: params.Providers,
		quota:     params.Quota,
		outbox:    params.Outbox,
		audit:     params.Audit,
		notifier:  params.Notifier,
		sync:      params.Sync,
		jobs:      params.Jobs,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

var cancellableFrom = []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusProcessing}

// Cancel stops an order that has not been fulfilled. Cancelling twice is a no-op.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, store, err := s.authorize(ctx, actor, orderID, false)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	switch order.Status {
	case enums.OrderStatusCancelled:
		return order, nil
	case enums.OrderStatusFulfilled, enums.OrderStatusShipped:
		return nil, invalidTransition(order.Status, enums.OrderStatusCancelled)
	}

	reason = strings.TrimSpace(reason)
	now := s.now().UTC()
	previous := order.Status
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.cancelInTx(ctx, tx, order, cancellableFrom, reason, now); err != nil {
			return err
		}
		return s.emit(ctx, tx, actor, enums.EventOrderCancelled, order, previous, reason)
	})
	if err != nil {
		return nil, err
	}

	s.releaseQuota(ctx, order.StoreID)
	s.syncPlatform(ctx, *order, platforms.StatusUpdate{Status: enums.OrderStatusCancelled, Reason: reason})
	s.notify(ctx, store, notifications.Input{
		Type:    enums.NotificationTypeOrderCancelled,
		Title:   "Order cancelled",
		Message: fmt.Sprintf("Order %s was cancelled.%s", displayNumber(order), reasonSuffix(reason)),
		Link:    orderLink(order.ID),
	})
	s.logg.Info(ctx, "order cancelled")
	return order, nil
}

func (s *service) cancelInTx(ctx context.Context, tx *gorm.DB, order *models.Order, from []enums.OrderStatus, reason string, now time.Time) error {
	repo := s.repo.WithTx(tx)
	updates := map[string]any{
		"status":       enums.OrderStatusCancelled,
		"cancelled_at": now,
		"updated_at":   now,
	}
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	ok, err := repo.TransitionOrder(ctx, order.ID, from, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	if err := repo.SetJobsStatus(ctx, order.ID, []enums.FulfillmentJobStatus{
		enums.JobStatusPending, enums.JobStatusSubmitted, enums.JobStatusInProduction, enums.JobStatusFailed,
	}, enums.JobStatusCancelled, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel fulfillment jobs")
	}
	if err := repo.SetItemsStatus(ctx, order.ID, []enums.ItemFulfillmentStatus{
		enums.ItemFulfillmentPending, enums.ItemFulfillmentProcessing,
	}, enums.ItemFulfillmentCancelled, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order items")
	}
	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &now
	if reason != "" {
		order.CancelReason = &reason
	}
	return nil
}

// UpdateTracking marks an order shipped with carrier tracking.
func (s *service) UpdateTracking(ctx context.Context, actor Actor, orderID uuid.UUID, tracking Tracking) (*models.Order, error) {
	tracking.Number = strings.TrimSpace(tracking.Number)
	tracking.URL = strings.TrimSpace(tracking.URL)
	tracking.Carrier = strings.TrimSpace(tracking.Carrier)
	if tracking.Number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking_number is required")
	}
	order, store, err := s.authorize(ctx, actor, orderID, false)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if order.Status == enums.OrderStatusCancelled || order.Status == enums.OrderStatusFailed {
		return nil, invalidTransition(order.Status, enums.OrderStatusShipped)
	}

	now := s.now().UTC()
	previous := order.Status
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.shipInTx(ctx, tx, order, tracking, now); err != nil {
			return err
		}
		return s.emit(ctx, tx, actor, enums.EventOrderShipped, order, previous, "")
	})
	if err != nil {
		return nil, err
	}

	s.syncPlatform(ctx, *order, platforms.StatusUpdate{
		Status:         enums.OrderStatusShipped,
		TrackingNumber: tracking.Number,
		TrackingURL:    tracking.URL,
		Carrier:        tracking.Carrier,
	})
	s.notify(ctx, store, notifications.Input{
		Type:    enums.NotificationTypeOrderShipped,
		Title:   "Order shipped",
		Message: fmt.Sprintf("Order %s shipped with tracking number %s.", displayNumber(order), tracking.Number),
		Link:    orderLink(order.ID),
	})
	s.logg.Info(ctx, "order shipped")
	return order, nil
}

func (s *service) shipInTx(ctx context.Context, tx *gorm.DB, order *models.Order, tracking Tracking, now time.Time) error {
	repo := s.repo.WithTx(tx)
	updates := map[string]any{
		"status":          enums.OrderStatusShipped,
		"tracking_number": tracking.Number,
		"tracking_url":    optional(tracking.URL),
		"carrier":         optional(tracking.Carrier),
		"updated_at":      now,
	}
	if order.ShippedAt == nil {
		updates["shipped_at"] = now
	}
	ok, err := repo.TransitionOrder(ctx, order.ID, []enums.OrderStatus{
		enums.OrderStatusCreated, enums.OrderStatusProcessing, enums.OrderStatusFulfilled, enums.OrderStatusShipped,
	}, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ship order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	if err := repo.SetItemsStatus(ctx, order.ID, []enums.ItemFulfillmentStatus{
		enums.ItemFulfillmentPending, enums.ItemFulfillmentProcessing, enums.ItemFulfillmentFulfilled,
	}, enums.ItemFulfillmentShipped, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ship order items")
	}
	if err := repo.SetJobsStatus(ctx, order.ID, []enums.FulfillmentJobStatus{
		enums.JobStatusPending, enums.JobStatusSubmitted, enums.JobStatusInProduction, enums.JobStatusFailed,
	}, enums.JobStatusCompleted, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete fulfillment jobs")
	}
	order.Status = enums.OrderStatusShipped
	order.TrackingNumber = &tracking.Number
	order.TrackingURL = optional(tracking.URL)
	order.Carrier = optional(tracking.Carrier)
	if order.ShippedAt == nil {
		order.ShippedAt = &now
	}
	return nil
}

var settableStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusCreated:    true,
	enums.OrderStatusProcessing: true,
	enums.OrderStatusFulfilled:  true,
	enums.OrderStatusShipped:    true,
	enums.OrderStatusCancelled:  true,
}

// UpdateStatus is the admin override. It may move an order backwards but never revives
// a shipped order into cancellation.
func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if !settableStatuses[status] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": string(status)})
	}
	order, store, err := s.authorize(ctx, actor, orderID, true)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	previous := order.Status
	if previous == enums.OrderStatusShipped && status == enums.OrderStatusCancelled {
		return nil, invalidTransition(previous, status)
	}

	before := statusSnapshot(order)
	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		switch status {
		case enums.OrderStatusCancelled:
			if previous != enums.OrderStatusCancelled {
				if err := s.cancelInTx(ctx, tx, order, []enums.OrderStatus{previous}, "", now); err != nil {
					return err
				}
			}
		default:
			ok, err := repo.TransitionOrder(ctx, order.ID, []enums.OrderStatus{previous}, map[string]any{
				"status":     status,
				"updated_at": now,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
			}
			order.Status = status
			if err := s.cascade(ctx, repo, order.ID, status, now); err != nil {
				return err
			}
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			ActorUserID: actor.UserID,
			Action:      "order.status_changed",
			EntityType:  auditEntityOrder,
			EntityID:    order.ID,
			Before:      before,
			After:       statusSnapshot(order),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		return s.emit(ctx, tx, actor, enums.EventOrderStatusChanged, order, previous, "")
	})
	if err != nil {
		return nil, err
	}

	if status == enums.OrderStatusCancelled && previous != enums.OrderStatusCancelled {
		s.releaseQuota(ctx, order.StoreID)
		s.syncPlatform(ctx, *order, platforms.StatusUpdate{Status: enums.OrderStatusCancelled})
	}
	if status == enums.OrderStatusProcessing && s.jobs != nil {
		if _, err := s.jobs.DispatchOrder(ctx, order.ID); err != nil {
			s.logg.WarnErr(ctx, "dispatch pending jobs", err)
		}
	}
	s.notify(ctx, store, notifications.Input{
		Type:    enums.NotificationTypeOrderStatusChanged,
		Title:   "Order status updated",
		Message: fmt.Sprintf("Order %s moved from %s to %s.", displayNumber(order), previous, status),
		Link:    orderLink(order.ID),
	})
	return order, nil
}

func (s *service) cascade(ctx context.Context, repo Repository, orderID uuid.UUID, status enums.OrderStatus, now time.Time) error {
	var err error
	switch status {
	case enums.OrderStatusFulfilled:
		err = repo.SetItemsStatus(ctx, orderID, []enums.ItemFulfillmentStatus{
			enums.ItemFulfillmentPending, enums.ItemFulfillmentProcessing,
		}, enums.ItemFulfillmentFulfilled, now)
	case enums.OrderStatusShipped:
		err = repo.SetItemsStatus(ctx, orderID, []enums.ItemFulfillmentStatus{
			enums.ItemFulfillmentPending, enums.ItemFulfillmentProcessing, enums.ItemFulfillmentFulfilled,
		}, enums.ItemFulfillmentShipped, now)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cascade item status")
	}
	return nil
}

// AssignProvider overrides the scorer with an explicit provider and recomputes cost and profit.
func (s *service) AssignProvider(ctx context.Context, actor Actor, orderID, providerID uuid.UUID) (*models.Order, error) {
	order, _, err := s.authorize(ctx, actor, orderID, true)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidStatus, "provider cannot change after the order is closed").
			WithDetails(map[string]any{"status": string(order.Status)})
	}
	provider, err := s.providers.FindByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}

	before := assignmentSnapshot(order)
	view := providers.ViewOf(*order)
	cost := providers.ProviderCost(providers.ProfileFrom(*provider), view)
	profit := providers.CalculateProfit(order.TotalCents, cost)
	method := enums.AssignmentManual
	now := s.now().UTC()

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"assigned_provider_id":  provider.ID,
			"production_cost_cents": cost,
			"profit_cents":          profit.Profit,
			"profit_margin":         profit.ProfitMargin,
			"assignment_method":     method,
			"updated_at":            now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign provider")
		}
		if err := repo.SetJobsProvider(ctx, order.ID, provider.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp job provider")
		}
		id := provider.ID
		order.AssignedProviderID = &id
		order.ProductionCostCents = &cost
		order.ProfitCents = &profit.Profit
		order.ProfitMargin = &profit.ProfitMargin
		order.AssignmentMethod = &method

		if err := s.audit.Record(ctx, tx, audit.Entry{
			ActorUserID: actor.UserID,
			Action:      "order.provider_assigned",
			EntityType:  auditEntityOrder,
			EntityID:    order.ID,
			Before:      before,
			After:       assignmentSnapshot(order),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		return s.emit(ctx, tx, actor, enums.EventOrderProviderChanged, order, order.Status, "")
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Assigned(string(enums.AssignmentManual))
	s.logg.Info(ctx, "provider assigned manually")
	return order, nil
}

// authorize loads the order and checks the actor may act on it. Store owners reach only
// their own orders; admin-only operations reject everyone else.
func (s *service) authorize(ctx context.Context, actor Actor, orderID uuid.UUID, adminOnly bool) (*models.Order, *models.Store, error) {
	if actor.UserID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if adminOnly && !actor.IsAdmin() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	store, err := s.stores.Get(ctx, order.StoreID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsAdmin() && store.OwnerUserID != actor.UserID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another store")
	}
	return order, store, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor Actor, eventType enums.OutboxEventType, order *models.Order, previous enums.OrderStatus, reason string) error {
	userID := actor.UserID
	storeID := order.StoreID
	prev := ""
	if previous != order.Status {
		prev = string(previous)
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: &userID, StoreID: &storeID, Role: string(actor.Role)},
		Data: outbox.OrderEvent{
			OrderID:            order.ID,
			StoreID:            order.StoreID,
			Platform:           string(order.Platform),
			ExternalOrderID:    order.ExternalOrderID,
			Status:             string(order.Status),
			PreviousStatus:     prev,
			AssignedProviderID: order.AssignedProviderID,
			TotalCents:         order.TotalCents,
			Reason:             reason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
	}
	return nil
}

// releaseQuota gives back the order slot of a cancelled order. Reconciliation corrects any drift.
func (s *service) releaseQuota(ctx context.Context, storeID uuid.UUID) {
	if s.quota == nil {
		return
	}
	sub, err := s.quota.ForStore(ctx, storeID)
	if err != nil {
		s.logg.WarnErr(ctx, "resolve subscription for cancelled order", err)
		return
	}
	if _, err := s.quota.Increment(ctx, sub.ID, enums.ResourceOrders, -1); err != nil {
		s.metrics.StepFailed("quota_release")
		s.logg.WarnErr(ctx, "release order usage", err)
	}
}

func (s *service) syncPlatform(ctx context.Context, order models.Order, update platforms.StatusUpdate) {
	if s.sync == nil || order.Platform == "" {
		return
	}
	s.sync.SyncStatus(ctx, order, update)
}

func (s *service) notify(ctx context.Context, store *models.Store, input notifications.Input) {
	if s.notifier == nil || store == nil {
		return
	}
	input.UserID = store.OwnerUserID
	storeID := store.ID
	input.StoreID = &storeID
	if err := s.notifier.Notify(ctx, input); err != nil {
		s.metrics.StepFailed("notify")
		s.logg.WarnErr(ctx, "notify store owner", err)
	}
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidStatus, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func statusSnapshot(order *models.Order) map[string]any {
	return map[string]any{"status": order.Status}
}

func assignmentSnapshot(order *models.Order) map[string]any {
	return map[string]any{
		"assigned_provider_id":  order.AssignedProviderID,
		"production_cost_cents": order.ProductionCostCents,
		"profit_cents":          order.ProfitCents,
		"assignment_method":     order.AssignmentMethod,
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func displayNumber(order *models.Order) string {
	if order.OrderNumber != nil && *order.OrderNumber != "" {
		return "#" + strings.TrimPrefix(*order.OrderNumber, "#")
	}
	return order.ExternalOrderID
}

func orderLink(id uuid.UUID) string {
	return "/orders/" + id.String()
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return " Reason: " + reason
}
