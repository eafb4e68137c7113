package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/lessongate-backend/api/middleware"
	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/api/validators"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// ProfileService applies self-service profile edits.
type ProfileService interface {
	UpdateProfile(ctx context.Context, caller users.Caller, update users.ProfileUpdate) (*models.User, error)
}

// RoleSyncer refreshes a member's guild roles.
type RoleSyncer interface {
	SyncMemberRoles(ctx context.Context, caller users.Caller, subject string) (*models.User, error)
}

// MeGet returns the caller's own record.
func MeGet(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		if user == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account not synced"))
			return
		}
		responses.WriteSuccess(w, newUserView(user))
	}
}

type profileRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	ImageURL *string `json:"image_url,omitempty" validate:"omitempty,url,max=2048"`
}

// MeUpdate edits name and avatar. Roles, admin and billing fields are not
// accepted from the client.
func MeUpdate(svc ProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}
		var body profileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Name != nil {
			name := validators.SanitizeString(*body.Name, 120)
			body.Name = &name
		}
		user, err := svc.UpdateProfile(r.Context(), middleware.CallerFromContext(r.Context()), users.ProfileUpdate{
			Name:     body.Name,
			ImageURL: body.ImageURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newUserView(user))
	}
}

// MeDiscordSync pulls the caller's current guild roles.
func MeDiscordSync(svc RoleSyncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "discord service unavailable"))
			return
		}
		caller := middleware.CallerFromContext(r.Context())
		user, err := svc.SyncMemberRoles(r.Context(), caller, caller.Subject)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newUserView(user))
	}
}
