package webhooks

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// StripeEventHandler reconciles verified Stripe events.
type StripeEventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (webhooks.Outcome, error)
}

// StripeVerifier checks the Stripe-Signature header and decodes the event.
type StripeVerifier interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// StripeWebhook handles subscription lifecycle events.
func StripeWebhook(svc StripeEventHandler, client StripeVerifier, obs Observer, logg *logger.Logger) http.HandlerFunc {
	obs = observerOrNop(obs)
	provider := enums.WebhookProviderStripe.String()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "stripe webhook unavailable"))
			return
		}

		payload, err := readBody(w, r)
		if err != nil {
			finish(w, r, logg, obs, provider, webhooks.OutcomeRejected, err)
			return
		}

		sigHeader := strings.TrimSpace(r.Header.Get("Stripe-Signature"))
		if sigHeader == "" {
			finish(w, r, logg, obs, provider, webhooks.OutcomeRejected, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing"))
			return
		}

		event, err := client.ConstructEvent(payload, sigHeader)
		if err != nil {
			finish(w, r, logg, obs, provider, webhooks.OutcomeRejected, signatureError(err))
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		finish(w, r, logg, obs, provider, outcome, err)
	}
}

func signatureError(err error) error {
	if errors.Is(err, webhook.ErrTooOld) {
		return pkgerrors.Wrap(pkgerrors.CodeSignatureExpired, err, "stripe signature expired")
	}
	return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify stripe signature")
}
