package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/linguamate-backend/api/middleware"
	"github.com/angelmondragon/linguamate-backend/api/responses"
	"github.com/angelmondragon/linguamate-backend/api/validators"
	"github.com/angelmondragon/linguamate-backend/internal/users"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
)

// ProfileService is the subset of the users service behind /users/me.
type ProfileService interface {
	GetOrCreate(ctx context.Context, identity users.Identity) (*models.User, error)
	UpdateProfile(ctx context.Context, identity users.Identity, input users.UpdateProfileInput) (*models.User, error)
}

// UserMe returns the caller's profile, creating it on first request.
func UserMe(svc ProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		user, err := svc.GetOrCreate(r.Context(), middleware.IdentityFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, users.FromModel(user))
	}
}

func UserMeUpdate(svc ProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		var input users.UpdateProfileInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.UpdateProfile(r.Context(), middleware.IdentityFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, users.FromModel(user))
	}
}
