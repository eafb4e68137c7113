package clerkwebhook

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
)

// Svix delivery headers.
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

// Verifier checks Svix-signed deliveries.
type Verifier struct {
	hook      *svix.Webhook
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier accepts a whsec_ secret or its bare base64 key.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMisconfigured, "clerk webhook secret is not configured")
	}
	hook, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMisconfigured, err, "clerk webhook secret is not valid base64")
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{hook: hook, tolerance: tolerance, now: time.Now}, nil
}

// Verify authenticates body against the svix headers and returns the message id.
// Freshness is only checked once the signature matches.
func (v *Verifier) Verify(headers http.Header, body []byte) (string, error) {
	id := strings.TrimSpace(headers.Get(HeaderID))
	timestamp := strings.TrimSpace(headers.Get(HeaderTimestamp))
	if id == "" || timestamp == "" || strings.TrimSpace(headers.Get(HeaderSignature)) == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing svix headers")
	}
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid svix timestamp")
	}

	if err := v.hook.VerifyIgnoringTimestamp(body, headers); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "svix signature mismatch")
	}

	sent := time.Unix(seconds, 0)
	if skew := v.now().Sub(sent); skew > v.tolerance || skew < -v.tolerance {
		return "", pkgerrors.New(pkgerrors.CodeSignatureExpired, "svix timestamp outside tolerance")
	}
	return id, nil
}
