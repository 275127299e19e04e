package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/api/controllers/dto"
	"github.com/inkroute/inkroute-backend/api/middleware"
	"github.com/inkroute/inkroute-backend/api/responses"
	"github.com/inkroute/inkroute-backend/api/validators"
	"github.com/inkroute/inkroute-backend/internal/quota"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

// UsageReporter reads a store's allowance counters.
type UsageReporter interface {
	Report(ctx context.Context, storeID uuid.UUID) (models.Subscription, []quota.Usage, error)
}

// Reconciler recomputes a subscription's counters from source rows.
type Reconciler interface {
	Reconcile(ctx context.Context, subscriptionID uuid.UUID) (models.Subscription, error)
}

type usageResponse struct {
	Subscription dto.Subscription `json:"subscription"`
	Usage        []quota.Usage    `json:"usage"`
}

// SubscriptionUsage serves GET /api/subscription/usage?store_id=.
// The store_id may be omitted when the merchant owns exactly one store.
func SubscriptionUsage(ledger UsageReporter, stores StoreService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ledger == nil || stores == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}
		userID, ok := middleware.UserUUIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		storeID, err := usageStore(ctx, r, userID, stores)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, usage, err := ledger.Report(ctx, storeID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, usageResponse{Subscription: dto.SubscriptionFrom(sub), Usage: usage})
	}
}

func usageStore(ctx context.Context, r *http.Request, userID uuid.UUID, stores StoreService) (uuid.UUID, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("store_id")); raw != "" {
		storeID, err := validators.ParseUUIDParam(raw, "store_id")
		if err != nil {
			return uuid.Nil, err
		}
		if _, err := stores.Owned(ctx, userID, storeID); err != nil {
			return uuid.Nil, err
		}
		return storeID, nil
	}
	owned, err := stores.ForOwner(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	switch len(owned) {
	case 0:
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "no store connected")
	case 1:
		return owned[0].ID, nil
	default:
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "store_id is required when you own several stores")
	}
}

// AdminReconcileSubscription recomputes usage counters of one subscription on demand.
func AdminReconcileSubscription(ledger Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota ledger unavailable"))
			return
		}
		subscriptionID, err := validators.ParseUUIDParam(chi.URLParam(r, "subscriptionId"), "subscription id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := ledger.Reconcile(r.Context(), subscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, usageResponse{Subscription: dto.SubscriptionFrom(sub), Usage: quota.Snapshot(sub)})
	}
}
