package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// ClerkEventHandler applies verified identity events keyed by svix message id.
type ClerkEventHandler interface {
	HandleEvent(ctx context.Context, messageID string, body []byte) (webhooks.Outcome, error)
}

// SvixVerifier authenticates a delivery and returns its message id.
type SvixVerifier interface {
	Verify(headers http.Header, body []byte) (string, error)
}

// ClerkWebhook handles identity provider user events.
func ClerkWebhook(svc ClerkEventHandler, verifier SvixVerifier, obs Observer, logg *logger.Logger) http.HandlerFunc {
	obs = observerOrNop(obs)
	provider := enums.WebhookProviderClerk.String()
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "clerk webhook unavailable"))
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			finish(w, r, logg, obs, provider, webhooks.OutcomeRejected, err)
			return
		}
		messageID, err := verifier.Verify(r.Header, body)
		if err != nil {
			finish(w, r, logg, obs, provider, webhooks.OutcomeRejected, err)
			return
		}
		outcome, err := svc.HandleEvent(r.Context(), messageID, body)
		finish(w, r, logg, obs, provider, outcome, err)
	}
}
