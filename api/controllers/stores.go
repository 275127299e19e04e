package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/api/controllers/dto"
	"github.com/inkroute/inkroute-backend/api/middleware"
	"github.com/inkroute/inkroute-backend/api/responses"
	"github.com/inkroute/inkroute-backend/api/validators"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

// StoreService is the store surface the dashboard needs.
type StoreService interface {
	ForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Store, error)
	Owned(ctx context.Context, ownerID, storeID uuid.UUID) (*models.Store, error)
	RotateAPIKey(ctx context.Context, ownerID, storeID uuid.UUID) (string, error)
}

type rotatedKeyResponse struct {
	Store  dto.Store `json:"store"`
	APIKey string    `json:"api_key"`
}

// ListStores returns the stores owned by the signed-in merchant.
func ListStores(svc StoreService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		owned, err := svc.ForOwner(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]dto.Store, 0, len(owned))
		for _, s := range owned {
			out = append(out, dto.StoreFrom(s))
		}
		responses.WriteSuccess(w, out)
	}
}

// RotateStoreAPIKey issues a new API key. The raw key is only ever returned here.
func RotateStoreAPIKey(svc StoreService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		storeID, err := validators.ParseUUIDParam(chi.URLParam(r, "storeId"), "store id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key, err := svc.RotateAPIKey(r.Context(), userID, storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := svc.Owned(r.Context(), userID, storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, rotatedKeyResponse{Store: dto.StoreFrom(*store), APIKey: key})
	}
}
