package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/lessongate-backend/pkg/stripe"
)

const stripeSecret = "whsec_test"

type fakeStripeHandler struct {
	calls   int
	outcome webhooks.Outcome
	err     error
}

func (f *fakeStripeHandler) HandleEvent(_ context.Context, _ *stripe.Event) (webhooks.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingObserver) Observe(provider, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[provider+"/"+outcome]++
}

func buildSignedEvent(t *testing.T, signedAt time.Time) ([]byte, string) {
	t.Helper()
	session := &stripe.CheckoutSession{
		ID:       "cs_" + uuid.NewString(),
		Customer: &stripe.Customer{ID: "cus_1"},
		Metadata: map[string]string{"discordId": "123"},
	}
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypeCheckoutSessionCompleted,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: raw},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, buildStripeSignatureHeader(payload, stripeSecret, signedAt.Unix())
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postStripe(h http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookProcessesVerifiedEvent(t *testing.T) {
	svc := &fakeStripeHandler{outcome: webhooks.OutcomeProcessed}
	obs := &countingObserver{}
	h := StripeWebhook(svc, pkgstripe.NewVerifier(stripeSecret, 5*time.Minute), obs, nil)

	payload, header := buildSignedEvent(t, time.Now())
	rec := postStripe(h, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected one call, got %d", svc.calls)
	}
	if obs.counts["stripe/processed"] != 1 {
		t.Fatalf("expected processed metric, got %v", obs.counts)
	}
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	svc := &fakeStripeHandler{outcome: webhooks.OutcomeProcessed}
	obs := &countingObserver{}
	h := StripeWebhook(svc, pkgstripe.NewVerifier(stripeSecret, 5*time.Minute), obs, nil)
	payload, _ := buildSignedEvent(t, time.Now())

	if rec := postStripe(h, payload, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: expected 401, got %d", rec.Code)
	}
	if rec := postStripe(h, payload, "t=1,v1=invalid"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged header: expected 401, got %d", rec.Code)
	}

	stalePayload, staleHeader := buildSignedEvent(t, time.Now().Add(-10*time.Minute))
	rec := postStripe(h, stalePayload, staleHeader)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale signature: expected 401, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeSignatureExpired) {
		t.Fatalf("expected signature expired code, got %q", body.Error.Code)
	}

	if svc.calls != 0 {
		t.Fatalf("handler must not run for unverified deliveries")
	}
	if obs.counts["stripe/rejected"] != 3 {
		t.Fatalf("expected 3 rejections, got %v", obs.counts)
	}
}

func TestStripeWebhookFailureAsksForRetry(t *testing.T) {
	svc := &fakeStripeHandler{outcome: webhooks.OutcomeFailed, err: pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("db down"), "apply")}
	h := StripeWebhook(svc, pkgstripe.NewVerifier(stripeSecret, 5*time.Minute), nil, nil)

	payload, header := buildSignedEvent(t, time.Now())
	if rec := postStripe(h, payload, header); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so Stripe retries, got %d", rec.Code)
	}
}

func TestStripeWebhookDuplicateIsAcknowledged(t *testing.T) {
	svc := &fakeStripeHandler{outcome: webhooks.OutcomeDuplicate}
	h := StripeWebhook(svc, pkgstripe.NewVerifier(stripeSecret, 5*time.Minute), nil, nil)

	payload, header := buildSignedEvent(t, time.Now())
	rec := postStripe(h, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data struct {
			Outcome string `json:"outcome"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Outcome != "duplicate" {
		t.Fatalf("expected duplicate outcome, got %q", body.Data.Outcome)
	}
}
