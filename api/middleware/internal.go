package middleware

import (
	"net/http"

	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/security"
)

// InternalSecretHeader carries the backend-to-backend shared secret.
const InternalSecretHeader = "X-Internal-Secret"

// SecretSource yields the configured shared secret or a configuration error.
type SecretSource func() (string, error)

// InternalOnly admits requests presenting the shared internal secret and
// marks them with an internal caller. An unset secret fails every request.
func InternalOnly(secret SecretSource, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if secret == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "internal secret source missing"))
				return
			}
			expected, err := secret()
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !security.SecretsEqual(r.Header.Get(InternalSecretHeader), expected) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid internal secret"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(ctx, users.InternalCaller(), nil)))
		})
	}
}
