// Package stripe configures stripe-go for lessongate: API key checks per
// environment, hosted checkout and portal sessions, and webhook signature
// verification.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	portalsession "github.com/stripe/stripe-go/v84/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// DefaultTolerance bounds how old a signed delivery may be.
const DefaultTolerance = 5 * time.Minute

var (
	ErrNoAPIKey        = errors.New("stripe api key is required")
	ErrNoSigningSecret = errors.New("stripe webhook secret is required")
)

// Accepted secret and restricted key prefixes per environment.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

type Client struct {
	environment   string
	signingSecret string
	tolerance     time.Duration
	canCallAPI    bool
}

// NewClient checks the key against the configured environment and installs
// it, with retries and logging routed through logg, as stripe-go's default
// backend.
func NewClient(ctx context.Context, cfg config.StripeConfig, tolerance time.Duration, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment %q is not test or live", env)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("stripe %s environment needs a key starting with %s", env, strings.Join(prefixes, " or "))
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrNoSigningSecret
	}

	stripe.Key = apiKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     leveledLogger{ctx: ctx, logg: logg},
	}))
	logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe.configured")

	client := NewVerifier(secret, tolerance)
	client.environment = env
	client.canCallAPI = true
	return client, nil
}

// NewVerifier builds a client that can only verify webhook signatures.
func NewVerifier(signingSecret string, tolerance time.Duration) *Client {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Client{environment: "test", signingSecret: signingSecret, tolerance: tolerance}
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// ConstructEvent verifies the Stripe-Signature header, rejects deliveries
// older than the tolerance and decodes the event.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, ErrNoSigningSecret
	}
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.signingSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

func (c *Client) NewCheckout(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if err := c.apiReady(params != nil); err != nil {
		return nil, err
	}
	params.Context = ctx
	return checkoutsession.New(params)
}

func (c *Client) NewPortal(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	if err := c.apiReady(params != nil); err != nil {
		return nil, err
	}
	params.Context = ctx
	return portalsession.New(params)
}

func (c *Client) apiReady(hasParams bool) error {
	if c == nil || !c.canCallAPI {
		return ErrNoAPIKey
	}
	if !hasParams {
		return errors.New("stripe params are required")
	}
	return nil
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(value, p) {
			return true
		}
	}
	return false
}

// leveledLogger routes stripe-go's request logging into the service logger.
// Request lines are debug; retries and failures surface at warn and error.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l leveledLogger) Debugf(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) Infof(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx, "stripe.request_failed", fmt.Errorf(format, v...))
}
