package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/api/responses"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

type storeAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*models.Store, error)
}

type apiCallMeter interface {
	ForStore(ctx context.Context, storeID uuid.UUID) (models.Subscription, error)
	Reserve(ctx context.Context, subscriptionID uuid.UUID, resource enums.QuotaResource, delta int64) error
}

// APIKey authenticates public v1 calls by store API key and charges one api_calls unit per request.
func APIKey(stores storeAuthenticator, meter apiCallMeter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := bearerToken(r)
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing api key"))
				return
			}

			store, err := stores.Authenticate(ctx, raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			if logg != nil {
				ctx = logg.WithStoreID(ctx, store.ID.String())
			}

			if meter != nil {
				sub, err := meter.ForStore(ctx, store.ID)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				if err := meter.Reserve(ctx, sub.ID, enums.ResourceAPICalls, 1); err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
			}

			ctx = context.WithValue(ctx, ctxStoreID, store.ID.String())
			ctx = context.WithValue(ctx, ctxUserID, store.OwnerUserID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
