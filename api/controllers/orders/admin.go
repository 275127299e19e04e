package orders

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/api/controllers/dto"
	"github.com/inkroute/inkroute-backend/api/responses"
	"github.com/inkroute/inkroute-backend/api/validators"
	"github.com/inkroute/inkroute-backend/internal/fulfillment"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type providerRequest struct {
	ProviderID string `json:"provider_id" validate:"required,uuid"`
}

// AdminUpdateStatus forces an order into a new status and cascades it to items and jobs.
func AdminUpdateStatus(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateStatus(ctx, actor, orderID, status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.OrderFrom(*order))
	}
}

// AdminAssignProvider overrides the scorer's choice for an order.
func AdminAssignProvider(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req providerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		providerID := uuid.MustParse(req.ProviderID)

		order, err := svc.AssignProvider(ctx, actor, orderID, providerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.OrderFrom(*order))
	}
}
