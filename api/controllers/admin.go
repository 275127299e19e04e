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
	"github.com/inkroute/inkroute-backend/internal/providers"
	"github.com/inkroute/inkroute-backend/internal/users"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
)

// UserAdmin changes roles and bans. Implementations reject self-targeting.
type UserAdmin interface {
	SetRole(ctx context.Context, actorID, userID uuid.UUID, role enums.UserRole) (*users.UserDTO, error)
	SetBanned(ctx context.Context, actorID, userID uuid.UUID, banned bool) (*users.UserDTO, error)
}

type providerStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

type banRequest struct {
	Banned *bool `json:"banned" validate:"required"`
}

func AdminListProviders(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		rows, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.Providers(rows))
	}
}

// AdminCreateProvider registers a new print provider. New providers start active.
func AdminCreateProvider(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		var input providers.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		provider, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.ProviderFrom(*provider))
	}
}

// AdminUpdateProviderStatus pauses or reactivates a provider. Inactive providers never score.
func AdminUpdateProviderStatus(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider service unavailable"))
			return
		}
		providerID, err := validators.ParseUUIDParam(chi.URLParam(r, "providerId"), "provider id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body providerStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseProviderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider status"))
			return
		}

		if err := svc.UpdateStatus(r.Context(), providerID, status); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := svc.Get(r.Context(), providerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.ProviderFrom(*provider))
	}
}

func AdminSetUserRole(svc UserAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, targetID, ok := adminTarget(w, r, logg)
		if !ok {
			return
		}

		var body roleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParseUserRole(body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}

		user, err := svc.SetRole(r.Context(), actorID, targetID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

func AdminSetUserBanned(svc UserAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, targetID, ok := adminTarget(w, r, logg)
		if !ok {
			return
		}

		var body banRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.SetBanned(r.Context(), actorID, targetID, *body.Banned)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// adminTarget writes the error response itself and reports ok=false on failure.
func adminTarget(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, uuid.UUID, bool) {
	actorID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, uuid.Nil, false
	}
	targetID, err := validators.ParseUUIDParam(chi.URLParam(r, "userId"), "user id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return actorID, targetID, true
}
