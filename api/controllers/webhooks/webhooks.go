// Package webhooks exposes the provider webhook endpoints. Each handler
// verifies the delivery, hands it to its reconciler and counts the outcome.
package webhooks

import (
	"io"
	"net/http"

	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Observer counts deliveries by provider and outcome.
type Observer interface {
	Observe(provider, outcome string)
}

type nopObserver struct{}

func (nopObserver) Observe(string, string) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return body, nil
}

// finish writes the provider response. Failed outcomes answer 5xx so the
// provider retries; everything else is acknowledged.
func finish(w http.ResponseWriter, r *http.Request, logg *logger.Logger, obs Observer, provider string, outcome webhooks.Outcome, err error) {
	if err != nil && outcome == "" {
		outcome = webhooks.OutcomeFailed
	}
	obs.Observe(provider, string(outcome))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
}
