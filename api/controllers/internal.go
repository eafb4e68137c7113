package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/lessongate-backend/api/middleware"
	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/api/validators"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// UserResolver finds users by any supported key.
type UserResolver interface {
	Resolve(ctx context.Context, lookup users.Lookup) (*models.User, error)
}

// InternalSyncDiscordRoles re-syncs a member's roles on behalf of a trusted
// backend. The route is guarded by the internal secret.
func InternalSyncDiscordRoles(svc RoleSyncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "discord service unavailable"))
			return
		}
		subject := strings.TrimSpace(chi.URLParam(r, "subject"))
		user, err := svc.SyncMemberRoles(r.Context(), middleware.CallerFromContext(r.Context()), subject)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newUserView(user))
	}
}

type lookupRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=subject discord_id stripe_customer_id"`
	Value string `json:"value" validate:"required,max=255"`
}

// InternalUserLookup resolves a user for server-to-server callers.
func InternalUserLookup(svc UserResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}
		var body lookupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.Resolve(r.Context(), users.Lookup{
			Kind:  users.LookupKind(body.Kind),
			Value: strings.TrimSpace(body.Value),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if user == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "user not found"))
			return
		}
		responses.WriteSuccess(w, newUserView(user))
	}
}
