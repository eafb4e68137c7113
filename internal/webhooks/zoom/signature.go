package zoomwebhook

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/security"
)

const (
	HeaderSignature = "x-zm-signature"
	HeaderTimestamp = "x-zm-request-timestamp"

	signaturePrefix = "v0="
)

// Verifier checks x-zm-signature against the webhook secret token.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMisconfigured, "zoom webhook secret is not configured")
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{secret: secret, tolerance: tolerance, now: time.Now}, nil
}

// Sign returns the expected signature header for timestamp and body.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	return signaturePrefix + security.HMACSHA256Hex(v.secret, "v0:"+timestamp+":"+string(body))
}

// Verify authenticates the request and rejects timestamps outside the
// tolerance window with a SIGNATURE_EXPIRED error.
func (v *Verifier) Verify(headers http.Header, body []byte) error {
	signature := strings.TrimSpace(headers.Get(HeaderSignature))
	timestamp := strings.TrimSpace(headers.Get(HeaderTimestamp))
	if signature == "" || timestamp == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing zoom signature headers")
	}
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid zoom timestamp")
	}
	if !security.SecretsEqual(signature, v.Sign(timestamp, body)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "zoom signature mismatch")
	}
	if skew := v.now().Sub(time.Unix(seconds, 0)); skew > v.tolerance || skew < -v.tolerance {
		return pkgerrors.New(pkgerrors.CodeSignatureExpired, "zoom request timestamp outside tolerance")
	}
	return nil
}

// EncryptToken answers the endpoint URL validation challenge.
func (v *Verifier) EncryptToken(plainToken string) string {
	return security.HMACSHA256Hex(v.secret, plainToken)
}
