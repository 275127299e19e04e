package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/api/controllers/dto"
	"github.com/inkroute/inkroute-backend/api/middleware"
	"github.com/inkroute/inkroute-backend/api/responses"
	"github.com/inkroute/inkroute-backend/api/validators"
	internalorders "github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/types"
)

type createOrderRequest struct {
	ExternalOrderID string            `json:"external_order_id" validate:"required,max=255"`
	OrderNumber     string            `json:"order_number" validate:"max=64"`
	ShippingAddress *types.Address    `json:"shipping_address" validate:"required"`
	Customer        *createCustomer   `json:"customer" validate:"required"`
	Items           []createOrderLine `json:"items" validate:"required,min=1,dive"`
	ShippingCents   *int64            `json:"shipping_cents" validate:"omitempty,gte=0"`
	TaxCents        *int64            `json:"tax_cents" validate:"omitempty,gte=0"`
}

type createCustomer struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=200"`
}

type createOrderLine struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	VariantID string `json:"variant_id" validate:"max=128"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,max=10000"`
}

type createOrderResponse struct {
	OrderID          uuid.UUID  `json:"order_id"`
	AssignedProvider *uuid.UUID `json:"assigned_provider"`
}

// PublicList returns the API-key store's orders in the public list shape.
func PublicList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		storeID, ok := middleware.StoreUUIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "store context missing"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.List(ctx, storeID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rows := dto.Orders(list.Orders)
		responses.WriteList(w, rows, types.ListMeta{Count: len(rows), Limit: params.Limit, NextCursor: list.NextCursor})
	}
}

// PublicCreate ingests an order with explicit create intent; a repeated external id is a 409.
func PublicCreate(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		storeID, ok := middleware.StoreUUIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "store context missing"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub := internalorders.Submission{
			StoreID:         storeID,
			Platform:        enums.PlatformAPI,
			ExternalOrderID: req.ExternalOrderID,
			OrderNumber:     req.OrderNumber,
			Customer:        internalorders.Customer{Email: req.Customer.Email, Name: req.Customer.Name},
			ShippingAddress: *req.ShippingAddress,
			ShippingCents:   req.ShippingCents,
			TaxCents:        req.TaxCents,
			Items:           make([]internalorders.SubmissionItem, 0, len(req.Items)),
		}
		for _, line := range req.Items {
			productID, err := uuid.Parse(line.ProductID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product_id"))
				return
			}
			sub.Items = append(sub.Items, internalorders.SubmissionItem{
				ProductID: &productID,
				VariantID: line.VariantID,
				Quantity:  line.Quantity,
			})
		}

		result, err := svc.Ingest(ctx, sub, internalorders.ModeCreate)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WritePublic(w, http.StatusCreated, createOrderResponse{
			OrderID:          result.OrderID,
			AssignedProvider: result.AssignedProviderID,
		})
	}
}
