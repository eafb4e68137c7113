package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	zoomwebhook "github.com/angelmondragon/lessongate-backend/internal/webhooks/zoom"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// ZoomReceiver verifies and handles Zoom deliveries.
type ZoomReceiver interface {
	Receive(ctx context.Context, headers http.Header, body []byte) (*zoomwebhook.Result, error)
}

// ZoomWebhook handles URL validation challenges and recording events. The
// validation answer is written bare because Zoom checks the exact body.
func ZoomWebhook(svc ZoomReceiver, obs Observer, logg *logger.Logger) http.HandlerFunc {
	obs = observerOrNop(obs)
	provider := enums.WebhookProviderZoom.String()
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "zoom webhook unavailable"))
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			finish(w, r, logg, obs, provider, webhooks.OutcomeRejected, err)
			return
		}
		result, err := svc.Receive(r.Context(), r.Header, body)
		var outcome webhooks.Outcome
		if result != nil {
			outcome = result.Outcome
		}
		if err == nil && result != nil && result.Validation != nil {
			obs.Observe(provider, string(outcome))
			responses.WriteJSON(w, http.StatusOK, result.Validation)
			return
		}
		finish(w, r, logg, obs, provider, outcome, err)
	}
}
