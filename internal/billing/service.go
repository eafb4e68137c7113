// Package billing starts Stripe-hosted checkout and customer-portal sessions.
// Subscription state itself only changes through the Stripe webhook.
package billing

import (
	"context"
	"errors"
	"strings"

	stripewebhook "github.com/angelmondragon/lessongate-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

// SessionClient creates hosted Stripe sessions. *pkg/stripe.Client
// implements it.
type SessionClient interface {
	NewCheckout(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortal(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Sessions  SessionClient
	Stripe    config.StripeConfig
	PublicURL string
	Logger    *logger.Logger
}

// Service orchestrates billing operations.
type Service struct {
	sessions  SessionClient
	cfg       config.StripeConfig
	publicURL string
	logg      *logger.Logger
}

// Session is a hosted Stripe page the client should redirect to.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Sessions == nil {
		return nil, errors.New("stripe session client is required")
	}
	if strings.TrimSpace(params.PublicURL) == "" {
		return nil, errors.New("public url is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		sessions:  params.Sessions,
		cfg:       params.Stripe,
		publicURL: strings.TrimRight(params.PublicURL, "/"),
		logg:      params.Logger,
	}, nil
}

// CreateCheckoutSession opens a subscription checkout for user. The Discord
// id travels in metadata so the webhook can find the member afterwards.
func (s *Service) CreateCheckoutSession(ctx context.Context, user *models.User) (*Session, error) {
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account not synced")
	}
	if user.DiscordID == nil || strings.TrimSpace(*user.DiscordID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "link a discord account before subscribing")
	}
	if user.SubscriptionStatus == enums.SubscriptionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already active")
	}
	priceID := strings.TrimSpace(s.cfg.SubscriptionPriceID)
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMisconfigured, "subscription price is not configured")
	}

	plan := s.cfg.PlanName
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.publicURL + s.cfg.SuccessPath),
		CancelURL:         stripe.String(s.publicURL + s.cfg.CancelPath),
		ClientReferenceID: stripe.String(user.ID.String()),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				stripewebhook.MetadataDiscordID: *user.DiscordID,
				stripewebhook.MetadataPlan:      plan,
			},
		},
	}
	params.AddMetadata(stripewebhook.MetadataDiscordID, *user.DiscordID)
	params.AddMetadata(stripewebhook.MetadataPlan, plan)
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		params.Customer = stripe.String(*user.StripeCustomerID)
	} else if user.Email != "" {
		params.CustomerEmail = stripe.String(user.Email)
	}

	session, err := s.sessions.NewCheckout(ctx, params)
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, user.ID.String()), "billing.checkout_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &Session{ID: session.ID, URL: session.URL}, nil
}

// CreatePortalSession opens the Stripe customer portal for an existing customer.
func (s *Service) CreatePortalSession(ctx context.Context, user *models.User) (*Session, error) {
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account not synced")
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no billing account on file")
	}
	session, err := s.sessions.NewPortal(ctx, &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(s.publicURL + s.cfg.PortalReturnPath),
	})
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, user.ID.String()), "billing.portal_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create portal session")
	}
	return &Session{ID: session.ID, URL: session.URL}, nil
}
