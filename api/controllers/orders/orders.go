package orders

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
	"github.com/inkroute/inkroute-backend/internal/fulfillment"
	internalorders "github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

// StoreDirectory resolves which stores a dashboard user may see.
type StoreDirectory interface {
	ForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Store, error)
	Owned(ctx context.Context, ownerID, storeID uuid.UUID) (*models.Store, error)
}

type orderPage struct {
	Orders     []dto.Order `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// List returns the caller's orders. Merchants see their own stores, admins see every store.
// ?store_id= narrows to one store and ?status= filters by order status.
func List(svc internalorders.Service, stores StoreDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		filters, err := buildFilters(ctx, r, actor, stores)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if filters == nil {
			responses.WriteSuccess(w, orderPage{Orders: []dto.Order{}})
			return
		}

		list, err := svc.ListAll(ctx, *filters, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderPage{Orders: dto.Orders(list.Orders), NextCursor: list.NextCursor})
	}
}

// buildFilters returns nil when a merchant owns no stores yet.
func buildFilters(ctx context.Context, r *http.Request, actor fulfillment.Actor, stores StoreDirectory) (*internalorders.Filters, error) {
	filters := &internalorders.Filters{}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("store_id")); raw != "" {
		storeID, err := validators.ParseUUIDParam(raw, "store_id")
		if err != nil {
			return nil, err
		}
		if !actor.IsAdmin() {
			if _, err := stores.Owned(ctx, actor.UserID, storeID); err != nil {
				return nil, err
			}
		}
		filters.StoreIDs = []uuid.UUID{storeID}
		return filters, nil
	}

	if actor.IsAdmin() {
		return filters, nil
	}
	owned, err := stores.ForOwner(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return nil, nil
	}
	for _, s := range owned {
		filters.StoreIDs = append(filters.StoreIDs, s.ID)
	}
	return filters, nil
}

// Detail returns one order with its items. Orders of other merchants read as not found.
func Detail(svc internalorders.Service, stores StoreDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.Find(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !actor.IsAdmin() {
			if _, err := stores.Owned(ctx, actor.UserID, order.StoreID); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
		}
		responses.WriteSuccess(w, dto.OrderFrom(*order))
	}
}

// Cancel cancels an order the caller owns. The body is optional.
func Cancel(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		order, err := svc.Cancel(ctx, actor, orderID, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.OrderFrom(*order))
	}
}

// Tracking records carrier tracking and marks the order shipped.
func Tracking(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req fulfillment.Tracking
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.UpdateTracking(ctx, actor, orderID, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.OrderFrom(*order))
	}
}

func actorFrom(r *http.Request) (fulfillment.Actor, error) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return fulfillment.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return fulfillment.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "role context missing")
	}
	return fulfillment.Actor{UserID: userID, Role: role}, nil
}
