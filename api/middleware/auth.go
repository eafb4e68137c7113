package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	pkgauth "github.com/angelmondragon/lessongate-backend/pkg/auth"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// IdentityStore resolves session subjects to local user records.
type IdentityStore interface {
	FindBySubject(ctx context.Context, subject string) (*models.User, error)
	UpsertByExternalSubject(ctx context.Context, subject string, profile users.ProfileFields, isAdminOverride bool) (*models.User, error)
}

// AuthParams configures session authentication.
type AuthParams struct {
	Verifier         pkgauth.Verifier
	Users            IdentityStore
	IsBootstrapAdmin func(subject, email string) bool
	Logger           *logger.Logger
}

// Auth requires a valid session token and seeds the context with the caller.
func Auth(params AuthParams) func(http.Handler) http.Handler {
	return authenticate(params, true)
}

// OptionalAuth resolves a caller when a token is present and continues
// anonymously otherwise. A present but invalid token is still rejected.
func OptionalAuth(params AuthParams) func(http.Handler) http.Handler {
	return authenticate(params, false)
}

func authenticate(params AuthParams, required bool) func(http.Handler) http.Handler {
	logg := params.Logger
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				if required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}
				next.ServeHTTP(w, r.WithContext(WithCaller(ctx, users.AnonymousCaller(), nil)))
				return
			}
			if params.Verifier == nil || params.Users == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "session verification unavailable"))
				return
			}

			claims, err := params.Verifier.Verify(ctx, token)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			subject := claims.ExternalSubject()
			if subject == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
				return
			}

			user, err := resolveUser(ctx, params, claims)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = WithCaller(ctx, users.UserCaller(subject, user), user)
			if logg != nil {
				ctx = logg.WithField(ctx, "subject", subject)
				if user != nil {
					ctx = logg.WithUserID(ctx, user.ID.String())
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveUser loads the caller's record, creating it on first sign-in so a
// missed identity webhook never locks a member out. Configured bootstrap
// admins are escalated here as well, matching email only when it is verified.
func resolveUser(ctx context.Context, params AuthParams, claims *pkgauth.SessionClaims) (*models.User, error) {
	subject := claims.ExternalSubject()
	bootstrap := params.IsBootstrapAdmin != nil && params.IsBootstrapAdmin(subject, claims.VerifiedEmail())

	user, err := params.Users.FindBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if user != nil && (!bootstrap || user.IsAdmin) {
		return user, nil
	}
	if user == nil && strings.TrimSpace(claims.Email) == "" {
		// Without an email there is nothing to create; the identity webhook
		// will backfill the record.
		return nil, nil
	}
	return params.Users.UpsertByExternalSubject(ctx, subject, users.ProfileFields{
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		ImageURL:      claims.ImageURL,
	}, bootstrap)
}

func bearerToken(header string) string {
	token := strings.TrimSpace(header)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

// RequireUser rejects callers without a synced user record.
func RequireUser(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account not synced"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin allows only admin users.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())
			switch {
			case caller.Kind == users.CallerAnonymous:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			case !caller.IsAdmin:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
