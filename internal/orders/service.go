package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkroute/inkroute-backend/internal/notifications"
	"github.com/inkroute/inkroute-backend/internal/providers"
	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/metrics"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
	"github.com/inkroute/inkroute-backend/pkg/pagination"
)

const defaultMaxJobAttempts = 3

var errNaturalKeyTaken = errors.New("order natural key already taken")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type storeLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type quotaLedger interface {
	ForStore(ctx context.Context, storeID uuid.UUID) (models.Subscription, error)
	Check(ctx context.Context, sub models.Subscription, resource enums.QuotaResource, delta int64) error
	Increment(ctx context.Context, subscriptionID uuid.UUID, resource enums.QuotaResource, delta int64) (models.Subscription, error)
	CheckThreshold(ctx context.Context, sub models.Subscription, resource enums.QuotaResource) (bool, error)
}

type providerSource interface {
	ListActive(ctx context.Context) ([]models.Provider, error)
}

type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	MatchExternal(ctx context.Context, platform enums.Platform, storeID uuid.UUID, externalIDs []string) (map[string]models.Product, error)
}

type notifier interface {
	Notify(ctx context.Context, input notifications.Input) error
}

// Service ingests orders from every entry point and serves order reads.
type Service interface {
	Ingest(ctx context.Context, sub Submission, mode Mode) (*Result, error)
	List(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListAll(ctx context.Context, filters Filters, params pagination.Params) (*OrderList, error)
	Get(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error)
	Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// ServiceParams bundles the dependencies of the ingestion pipeline.
type ServiceParams struct {
	Repo      Repository
	DB        txRunner
	Stores    storeLoader
	Quota     quotaLedger
	Providers providerSource
	Products  productCatalog
	Outbox    outboxPublisher
	Notifier  notifier
	Metrics   *metrics.PipelineMetrics
	Config    config.FulfillmentConfig
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo        Repository
	db          txRunner
	stores      storeLoader
	quota       quotaLedger
	providers   providerSource
	products    productCatalog
	outbox      outboxPublisher
	notifier    notifier
	metrics     *metrics.PipelineMetrics
	flatShip    int64
	maxAttempts int
	strategy    enums.Strategy
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Stores == nil:
		return nil, fmt.Errorf("store loader required")
	case params.Quota == nil:
		return nil, fmt.Errorf("quota ledger required")
	case params.Providers == nil:
		return nil, fmt.Errorf("provider source required")
	case params.Products == nil:
		return nil, fmt.Errorf("product catalog required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}

	strategy, err := enums.ParseStrategy(strings.ToLower(strings.TrimSpace(params.Config.DefaultStrategy)))
	if err != nil {
		strategy = enums.StrategyBalanced
	}
	maxAttempts := params.Config.MaxJobAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxJobAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		db:          params.DB,
		stores:      params.Stores,
		quota:       params.Quota,
		providers:   params.Providers,
		products:    params.Products,
		outbox:      params.Outbox,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		flatShip:    params.Config.FlatShippingCents,
		maxAttempts: maxAttempts,
		strategy:    strategy,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// Ingest validates a submission and either creates a new order or, on the webhook path,
// applies it to the order that already carries the same natural key.
func (s *service) Ingest(ctx context.Context, sub Submission, mode Mode) (*Result, error) {
	if mode != ModeWebhook && mode != ModeCreate {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown ingestion mode")
	}
	sub = normalizeSubmission(sub)
	if err := validateSubmission(sub); err != nil {
		s.metrics.Ingested(string(sub.Platform), metrics.OutcomeRejected)
		return nil, err
	}

	store, err := s.stores.Get(ctx, sub.StoreID)
	if err != nil {
		return nil, err
	}
	if mode == ModeCreate {
		sub.Platform = enums.PlatformAPI
	} else if sub.Platform == "" {
		sub.Platform = store.Platform
	}
	ctx = s.logg.WithStoreID(ctx, store.ID.String())
	ctx = s.logg.WithPlatform(ctx, string(sub.Platform))

	subscription, err := s.quota.ForStore(ctx, store.ID)
	if err != nil {
		return nil, err
	}
	if err := s.resolveProducts(ctx, store, &sub, mode); err != nil {
		s.metrics.Ingested(string(sub.Platform), metrics.OutcomeRejected)
		return nil, err
	}

	existing, err := s.findExisting(ctx, store.ID, sub, mode)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if mode == ModeCreate {
			s.metrics.Ingested(string(sub.Platform), metrics.OutcomeDuplicate)
			return nil, duplicateOrder(sub.ExternalOrderID)
		}
		return s.update(ctx, existing, sub)
	}

	if err := s.quota.Check(ctx, subscription, enums.ResourceOrders, 1); err != nil {
		s.metrics.Ingested(string(sub.Platform), metrics.OutcomeLimited)
		return nil, err
	}

	order, err := s.create(ctx, store, sub)
	if err != nil {
		if !errors.Is(err, errNaturalKeyTaken) {
			s.metrics.Ingested(string(sub.Platform), metrics.OutcomeFailed)
			return nil, err
		}
		if mode == ModeCreate {
			s.metrics.Ingested(string(sub.Platform), metrics.OutcomeDuplicate)
			return nil, duplicateOrder(sub.ExternalOrderID)
		}
		// A concurrent delivery won the insert; converge on its row.
		existing, err = s.findExisting(ctx, store.ID, sub, mode)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently, retry")
		}
		return s.update(ctx, existing, sub)
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	result := &Result{OrderID: order.ID, Created: true}
	result.AssignedProviderID = s.assign(ctx, order)
	s.consumeQuota(ctx, subscription)
	s.notify(ctx, store, notifications.Input{
		Type:    enums.NotificationTypeOrderCreated,
		Title:   "New order received",
		Message: fmt.Sprintf("Order %s was received from %s.", displayNumber(order), order.Platform),
		Link:    orderLink(order.ID),
	})
	s.metrics.Ingested(string(sub.Platform), metrics.OutcomeCreated)
	s.logg.Info(ctx, "order ingested")
	return result, nil
}

func (s *service) findExisting(ctx context.Context, storeID uuid.UUID, sub Submission, mode Mode) (*models.Order, error) {
	order, err := s.repo.FindByStoreExternal(ctx, storeID, sub.ExternalOrderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	if mode != ModeWebhook || sub.Platform == enums.PlatformAPI {
		return nil, nil
	}

	order, err = s.repo.FindByPlatformExternal(ctx, sub.Platform, sub.ExternalOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	if order.StoreID != storeID {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "platform order id already belongs to another store")
		return nil, duplicateOrder(sub.ExternalOrderID)
	}
	return order, nil
}

func (s *service) create(ctx context.Context, store *models.Store, sub Submission) (*models.Order, error) {
	subtotal, shipping, tax, total := s.totals(sub)
	order := &models.Order{
		ID:                        uuid.New(),
		StoreID:                   store.ID,
		Platform:                  sub.Platform,
		ExternalOrderID:           sub.ExternalOrderID,
		OrderNumber:               optional(sub.OrderNumber),
		CustomerEmail:             sub.Customer.Email,
		CustomerName:              sub.Customer.Name,
		ShippingAddress:           sub.ShippingAddress,
		ShippingCountry:           sub.ShippingAddress.CountryCode(),
		SubtotalCents:             subtotal,
		ShippingCents:             shipping,
		TaxCents:                  tax,
		TotalCents:                total,
		Status:                    enums.OrderStatusCreated,
		FinancialStatus:           optional(sub.FinancialStatus),
		ExternalFulfillmentStatus: optional(sub.FulfillmentStatus),
	}
	items := buildItems(order.ID, sub.Items)

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errNaturalKeyTaken
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order items")
		}
		if err := repo.CreateJobs(ctx, buildJobs(order.ID, items, nil, s.maxAttempts)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert fulfillment jobs")
		}
		return s.emit(ctx, tx, enums.EventOrderCreated, order, "")
	})
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// update applies a re-delivered submission to the stored order. The order row is locked for the
// whole transaction, and money, address and lines only change while no job has left pending.
func (s *service) update(ctx context.Context, existing *models.Order, sub Submission) (*Result, error) {
	ctx = s.logg.WithOrderID(ctx, existing.ID.String())
	order := existing
	linesChanged := false

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockOrder(ctx, existing.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		order = locked
		now := s.now().UTC()
		updates := map[string]any{
			"customer_email":              sub.Customer.Email,
			"customer_name":               sub.Customer.Name,
			"order_number":                optional(sub.OrderNumber),
			"financial_status":            optional(sub.FinancialStatus),
			"external_fulfillment_status": optional(sub.FulfillmentStatus),
			"updated_at":                  now,
		}

		editable, err := editableLines(ctx, repo, locked)
		if err != nil {
			return err
		}
		if editable {
			address, err := json.Marshal(sub.ShippingAddress)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode shipping address")
			}
			subtotal, shipping, tax, total := s.totals(sub)
			updates["shipping_address"] = string(address)
			updates["shipping_country"] = sub.ShippingAddress.CountryCode()
			updates["subtotal_cents"] = subtotal
			updates["shipping_cents"] = shipping
			updates["tax_cents"] = tax
			updates["total_cents"] = total

			linesChanged, err = s.reconcileItems(ctx, repo, locked, sub.Items, now)
			if err != nil {
				return err
			}
		} else {
			s.logg.Info(ctx, "order is in production; keeping stored lines and totals")
		}
		if err := repo.UpdateOrder(ctx, locked.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		return s.emit(ctx, tx, enums.EventOrderUpdated, locked, "")
	})
	if err != nil {
		s.metrics.Ingested(string(sub.Platform), metrics.OutcomeFailed)
		return nil, err
	}

	result := &Result{OrderID: order.ID, Updated: true, AssignedProviderID: order.AssignedProviderID}
	manual := order.AssignmentMethod != nil && *order.AssignmentMethod == enums.AssignmentManual
	if linesChanged && !manual {
		if reloaded, err := s.repo.FindByID(ctx, order.ID); err != nil {
			s.logg.WarnErr(ctx, "reload order for reassignment", err)
		} else if chosen := s.assign(ctx, reloaded); chosen != nil {
			result.AssignedProviderID = chosen
		}
	}
	s.metrics.Ingested(string(sub.Platform), metrics.OutcomeUpdated)
	s.logg.Info(ctx, "order updated from redelivery")
	return result, nil
}

// editableLines reports whether nothing of the order has been handed to a provider yet.
func editableLines(ctx context.Context, repo Repository, order *models.Order) (bool, error) {
	if order.Status != enums.OrderStatusCreated {
		return false, nil
	}
	jobs, err := repo.ListJobs(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fulfillment jobs")
	}
	for _, job := range jobs {
		if job.Status == enums.JobStatusCancelled {
			continue
		}
		if job.Status != enums.JobStatusPending || job.Attempts > 0 {
			return false, nil
		}
	}
	return true, nil
}

// reconcileItems edits stored lines in place. Lines match on product identity: matched lines keep
// their ids and jobs, new lines get a pending job, and lines missing from the submission are cancelled.
func (s *service) reconcileItems(ctx context.Context, repo Repository, order *models.Order, lines []SubmissionItem, now time.Time) (bool, error) {
	stored, err := repo.ListItems(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	live := make([]models.OrderItem, 0, len(stored))
	for _, item := range stored {
		if item.FulfillmentStatus != enums.ItemFulfillmentCancelled {
			live = append(live, item)
		}
	}
	if itemSignature(live) == submissionSignature(lines) {
		return false, nil
	}

	pool := make(map[string][]models.OrderItem, len(live))
	for _, item := range live {
		key := identityKey(item.ProductID, deref(item.ExternalProductID), deref(item.VariantID), deref(item.SKU))
		pool[key] = append(pool[key], item)
	}

	var added []SubmissionItem
	for _, line := range lines {
		key := identityKey(line.ProductID, line.ExternalProductID, line.VariantID, line.SKU)
		matches := pool[key]
		if len(matches) == 0 {
			added = append(added, line)
			continue
		}
		item := matches[0]
		pool[key] = matches[1:]

		name := line.Name
		if name == "" {
			name = "Item"
		}
		if item.Name == name && item.Quantity == line.Quantity && item.UnitPriceCents == line.UnitPriceCents {
			continue
		}
		if err := repo.UpdateItem(ctx, item.ID, map[string]any{
			"name":             name,
			"product_type":     line.ProductType,
			"design_id":        line.DesignID,
			"quantity":         line.Quantity,
			"unit_price_cents": line.UnitPriceCents,
			"total_cents":      line.UnitPriceCents * int64(line.Quantity),
			"updated_at":       now,
		}); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
		}
	}

	var dropped []uuid.UUID
	for _, rest := range pool {
		for _, item := range rest {
			dropped = append(dropped, item.ID)
		}
	}
	if err := repo.CancelItems(ctx, dropped, now); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel dropped order items")
	}

	if len(added) > 0 {
		items := buildItems(order.ID, added)
		if err := repo.CreateItems(ctx, items); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order items")
		}
		if err := repo.CreateJobs(ctx, buildJobs(order.ID, items, order.AssignedProviderID, s.maxAttempts)); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert fulfillment jobs")
		}
	}
	return true, nil
}

// assign picks a provider for a freshly stored order. Failures leave the order unassigned.
func (s *service) assign(ctx context.Context, order *models.Order) *uuid.UUID {
	candidates, err := s.providers.ListActive(ctx)
	if err != nil {
		s.metrics.StepFailed("assign_provider")
		s.logg.WarnErr(ctx, "list providers", err)
		return nil
	}
	view := providers.ViewOf(*order)
	chosen := providers.SelectProvider(view, candidates, s.strategy)
	if chosen == nil {
		s.logg.Warn(ctx, "no active provider available")
		return nil
	}

	cost := providers.ProviderCost(providers.ProfileFrom(*chosen), view)
	profit := providers.CalculateProfit(order.TotalCents, cost)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"assigned_provider_id":  chosen.ID,
			"production_cost_cents": cost,
			"profit_cents":          profit.Profit,
			"profit_margin":         profit.ProfitMargin,
			"assignment_method":     enums.AssignmentAuto,
			"updated_at":            s.now().UTC(),
		}); err != nil {
			return err
		}
		return repo.SetJobsProvider(ctx, order.ID, chosen.ID)
	})
	if err != nil {
		s.metrics.StepFailed("assign_provider")
		s.logg.WarnErr(ctx, "store provider assignment", err)
		return nil
	}
	s.metrics.Assigned(string(enums.AssignmentAuto))
	id := chosen.ID
	return &id
}

func (s *service) consumeQuota(ctx context.Context, sub models.Subscription) {
	updated, err := s.quota.Increment(ctx, sub.ID, enums.ResourceOrders, 1)
	if err != nil {
		s.metrics.StepFailed("quota_increment")
		s.logg.WarnErr(ctx, "increment order usage", err)
		return
	}
	if _, err := s.quota.CheckThreshold(ctx, updated, enums.ResourceOrders); err != nil {
		s.metrics.StepFailed("quota_threshold")
		s.logg.WarnErr(ctx, "check order quota threshold", err)
	}
}

func (s *service) notify(ctx context.Context, store *models.Store, input notifications.Input) {
	if s.notifier == nil {
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

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, reason string) error {
	storeID := order.StoreID
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{StoreID: &storeID, Source: string(order.Platform)},
		Data: outbox.OrderEvent{
			OrderID:            order.ID,
			StoreID:            order.StoreID,
			Platform:           string(order.Platform),
			ExternalOrderID:    order.ExternalOrderID,
			Status:             string(order.Status),
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

// resolveProducts fills product snapshots. Explicit creates must reference products owned by
// the store owner; webhook lines are matched through external refs and never fail.
func (s *service) resolveProducts(ctx context.Context, store *models.Store, sub *Submission, mode Mode) error {
	var ids []uuid.UUID
	var externalIDs []string
	for _, item := range sub.Items {
		if item.ProductID != nil {
			ids = append(ids, *item.ProductID)
		} else if item.ExternalProductID != "" {
			externalIDs = append(externalIDs, item.ExternalProductID)
		}
	}

	if len(ids) > 0 {
		found, err := s.products.FindByIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		for i := range sub.Items {
			item := &sub.Items[i]
			if item.ProductID == nil {
				continue
			}
			product, ok := found[*item.ProductID]
			if mode == ModeCreate {
				if !ok {
					return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
						WithDetails(map[string]any{"product_id": item.ProductID.String()})
				}
				if product.UserID != store.OwnerUserID {
					return pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to this store").
						WithDetails(map[string]any{"product_id": item.ProductID.String()})
				}
				if product.Status == enums.ProductStatusArchived {
					return pkgerrors.New(pkgerrors.CodeValidation, "product is archived").
						WithDetails(map[string]any{"product_id": item.ProductID.String()})
				}
				applySnapshot(item, product, true)
				continue
			}
			if !ok || product.UserID != store.OwnerUserID {
				item.ProductID = nil
				continue
			}
			applySnapshot(item, product, false)
		}
	}

	if mode == ModeWebhook && len(externalIDs) > 0 {
		matched, err := s.products.MatchExternal(ctx, sub.Platform, store.ID, externalIDs)
		if err != nil {
			s.metrics.StepFailed("match_products")
			s.logg.WarnErr(ctx, "match external products", err)
			return nil
		}
		for i := range sub.Items {
			item := &sub.Items[i]
			if item.ProductID != nil || item.ExternalProductID == "" {
				continue
			}
			if product, ok := matched[item.ExternalProductID]; ok {
				id := product.ID
				item.ProductID = &id
				applySnapshot(item, product, false)
			}
		}
	}
	return nil
}

// applySnapshot copies catalog fields onto a line. Price is only taken from the catalog when
// the caller did not supply one, or when forced for API creates.
func applySnapshot(item *SubmissionItem, product models.Product, force bool) {
	if force || item.UnitPriceCents == 0 {
		item.UnitPriceCents = product.BasePriceCents
	}
	if force || item.Name == "" {
		item.Name = product.Name
	}
	if force || item.ProductType == "" {
		item.ProductType = product.ProductType
	}
	if force || item.DesignID == nil {
		item.DesignID = product.DesignID
	}
}

func (s *service) totals(sub Submission) (subtotal, shipping, tax, total int64) {
	for _, item := range sub.Items {
		subtotal += item.UnitPriceCents * int64(item.Quantity)
	}
	shipping = s.flatShip
	if sub.ShippingCents != nil {
		shipping = *sub.ShippingCents
	}
	if sub.TaxCents != nil {
		tax = *sub.TaxCents
	}
	return subtotal, shipping, tax, subtotal + shipping + tax
}

func (s *service) List(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return s.ListAll(ctx, Filters{StoreIDs: []uuid.UUID{storeID}}, params)
}

func (s *service) ListAll(ctx context.Context, filters Filters, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: rows, NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.StoreID != storeID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func normalizeSubmission(sub Submission) Submission {
	sub.ExternalOrderID = strings.TrimSpace(sub.ExternalOrderID)
	sub.OrderNumber = strings.TrimSpace(sub.OrderNumber)
	sub.Customer.Email = strings.ToLower(strings.TrimSpace(sub.Customer.Email))
	sub.Customer.Name = strings.TrimSpace(sub.Customer.Name)
	sub.ShippingAddress.Country = sub.ShippingAddress.CountryCode()
	items := make([]SubmissionItem, len(sub.Items))
	for i, item := range sub.Items {
		item.ExternalProductID = strings.TrimSpace(item.ExternalProductID)
		item.VariantID = strings.TrimSpace(item.VariantID)
		item.SKU = strings.TrimSpace(item.SKU)
		item.Name = strings.TrimSpace(item.Name)
		item.ProductType = strings.ToLower(strings.TrimSpace(item.ProductType))
		items[i] = item
	}
	sub.Items = items
	return sub
}

func validateSubmission(sub Submission) error {
	var problems []string
	if sub.StoreID == uuid.Nil {
		problems = append(problems, "store_id is required")
	}
	if sub.ExternalOrderID == "" {
		problems = append(problems, "external_order_id is required")
	}
	if len(sub.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, item := range sub.Items {
		if item.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be greater than zero", i))
		}
		if item.UnitPriceCents < 0 {
			problems = append(problems, fmt.Sprintf("items[%d].unit_price must not be negative", i))
		}
	}
	if sub.ShippingCents != nil && *sub.ShippingCents < 0 {
		problems = append(problems, "shipping must not be negative")
	}
	if sub.TaxCents != nil && *sub.TaxCents < 0 {
		problems = append(problems, "tax must not be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid order submission").
		WithDetails(map[string]any{"problems": problems})
}

func buildItems(orderID uuid.UUID, lines []SubmissionItem) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		name := line.Name
		if name == "" {
			name = "Item"
		}
		items = append(items, models.OrderItem{
			ID:                uuid.New(),
			OrderID:           orderID,
			ProductID:         line.ProductID,
			ExternalProductID: optional(line.ExternalProductID),
			VariantID:         optional(line.VariantID),
			DesignID:          line.DesignID,
			ProductType:       line.ProductType,
			Name:              name,
			SKU:               optional(line.SKU),
			Quantity:          line.Quantity,
			UnitPriceCents:    line.UnitPriceCents,
			TotalCents:        line.UnitPriceCents * int64(line.Quantity),
			FulfillmentStatus: enums.ItemFulfillmentPending,
		})
	}
	return items
}

// BuildJobs creates one pending fulfillment job per item.
func BuildJobs(orderID uuid.UUID, items []models.OrderItem, providerID *uuid.UUID, maxAttempts int) []models.FulfillmentJob {
	return buildJobs(orderID, items, providerID, maxAttempts)
}

func buildJobs(orderID uuid.UUID, items []models.OrderItem, providerID *uuid.UUID, maxAttempts int) []models.FulfillmentJob {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxJobAttempts
	}
	jobs := make([]models.FulfillmentJob, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, models.FulfillmentJob{
			ID:          uuid.New(),
			OrderID:     orderID,
			OrderItemID: item.ID,
			ProviderID:  providerID,
			Status:      enums.JobStatusPending,
			MaxAttempts: maxAttempts,
		})
	}
	return jobs
}

func itemSignature(items []models.OrderItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, lineKey(item.ProductID, deref(item.ExternalProductID), deref(item.VariantID), deref(item.SKU), item.Name, item.Quantity, item.UnitPriceCents))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func submissionSignature(items []SubmissionItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		name := item.Name
		if name == "" {
			name = "Item"
		}
		lines = append(lines, lineKey(item.ProductID, item.ExternalProductID, item.VariantID, item.SKU, name, item.Quantity, item.UnitPriceCents))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func identityKey(productID *uuid.UUID, externalID, variantID, sku string) string {
	pid := ""
	if productID != nil {
		pid = productID.String()
	}
	return strings.Join([]string{pid, externalID, variantID, sku}, "|")
}

func lineKey(productID *uuid.UUID, externalID, variantID, sku, name string, qty int, unit int64) string {
	pid := ""
	if productID != nil {
		pid = productID.String()
	}
	return strings.Join([]string{pid, externalID, variantID, sku, name, strconv.Itoa(qty), strconv.FormatInt(unit, 10)}, "|")
}

func duplicateOrder(externalID string) error {
	return pkgerrors.New(pkgerrors.CodeDuplicate, "order already exists").
		WithDetails(map[string]any{"external_order_id": externalID})
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

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
