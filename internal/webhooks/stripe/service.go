package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

const (
	provider = string(enums.WebhookProviderStripe)

	// MetadataDiscordID is set on checkout sessions created by the billing service.
	MetadataDiscordID = "discordId"
	MetadataPlan      = "plan"
)

// RoleGranter mirrors subscriber role changes in the community guild.
type RoleGranter interface {
	GrantSubscriberRole(ctx context.Context, discordID string) error
	RevokeSubscriberRole(ctx context.Context, discordID string) error
}

type ServiceParams struct {
	Users            *users.Service
	Runner           *webhooks.Runner
	Roles            RoleGranter
	SubscriberRoleID string
	DefaultPlan      string
	Logger           *logger.Logger
}

type Service struct {
	users        *users.Service
	runner       *webhooks.Runner
	roles        RoleGranter
	subscriberID string
	defaultPlan  string
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users service required")
	}
	if params.Runner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook runner required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		users:        params.Users,
		runner:       params.Runner,
		roles:        params.Roles,
		subscriberID: strings.TrimSpace(params.SubscriberRoleID),
		defaultPlan:  strings.TrimSpace(params.DefaultPlan),
		logg:         params.Logger,
	}, nil
}

// HandleEvent reconciles one verified Stripe event into the identity store.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (webhooks.Outcome, error) {
	if event == nil || event.Data == nil || event.ID == "" {
		return webhooks.OutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithEvent(ctx, provider, event.ID)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case stripe.EventTypeInvoicePaymentFailed:
		return s.handleInvoice(ctx, event, enums.SubscriptionStatusPastDue)
	case stripe.EventTypeInvoicePaid:
		return s.handleInvoice(ctx, event, enums.SubscriptionStatusActive)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		s.logg.Debug(s.logg.WithField(ctx, "event_type", string(event.Type)), "stripe.event_ignored")
		return webhooks.OutcomeIgnored, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (webhooks.Outcome, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return webhooks.OutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	discordID := strings.TrimSpace(session.Metadata[MetadataDiscordID])
	customerID := customerIDOf(session.Customer)
	if discordID == "" || customerID == "" {
		s.logg.Error(s.logg.WithField(ctx, "session_id", session.ID), "stripe.checkout_missing_identity",
			fmt.Errorf("checkout session missing discord id or customer"))
		return webhooks.OutcomeIgnored, nil
	}

	plan := strings.TrimSpace(session.Metadata[MetadataPlan])
	if plan == "" {
		plan = s.defaultPlan
	}
	update := users.SubscriptionUpdate{
		Lookup:           users.ByDiscordID(discordID),
		Status:           enums.SubscriptionStatusActive,
		StripeCustomerID: customerID,
		RoleToAppend:     s.subscriberID,
		EventAt:          eventTime(event),
	}
	if plan != "" {
		update.Plan = &plan
	}

	matched, outcome, err := s.apply(ctx, event, update)
	if err != nil || matched == nil {
		return outcome, err
	}
	if s.roles != nil {
		s.runner.AfterCommit(ctx, "discord.grant_subscriber", func(ctx context.Context) error {
			return s.roles.GrantSubscriberRole(ctx, discordID)
		})
	}
	return outcome, nil
}

func (s *Service) handleInvoice(ctx context.Context, event *stripe.Event, status enums.SubscriptionStatus) (webhooks.Outcome, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return webhooks.OutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	customerID := customerIDOf(invoice.Customer)
	if customerID == "" {
		s.logg.Warn(s.logg.WithField(ctx, "invoice_id", invoice.ID), "stripe.invoice_missing_customer")
		return webhooks.OutcomeIgnored, nil
	}

	update := users.SubscriptionUpdate{
		Lookup:  users.ByStripeCustomer(customerID),
		Status:  status,
		EventAt: eventTime(event),
	}
	if status == enums.SubscriptionStatusActive {
		update.RoleToAppend = s.subscriberID
	}

	matched, outcome, err := s.apply(ctx, event, update)
	if err != nil || matched == nil {
		return outcome, err
	}
	if status == enums.SubscriptionStatusActive && s.roles != nil && matched.DiscordID != nil {
		discordID := *matched.DiscordID
		s.runner.AfterCommit(ctx, "discord.grant_subscriber", func(ctx context.Context) error {
			return s.roles.GrantSubscriberRole(ctx, discordID)
		})
	}
	return outcome, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) (webhooks.Outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return webhooks.OutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
	}
	customerID := customerIDOf(sub.Customer)
	if customerID == "" {
		s.logg.Warn(s.logg.WithField(ctx, "subscription_id", sub.ID), "stripe.subscription_missing_customer")
		return webhooks.OutcomeIgnored, nil
	}

	matched, outcome, err := s.apply(ctx, event, users.SubscriptionUpdate{
		Lookup:       users.ByStripeCustomer(customerID),
		Status:       enums.SubscriptionStatusCanceled,
		RoleToRemove: s.subscriberID,
		EventAt:      eventTime(event),
	})
	if err != nil || matched == nil {
		return outcome, err
	}
	if s.roles != nil && matched.DiscordID != nil {
		discordID := *matched.DiscordID
		s.runner.AfterCommit(ctx, "discord.revoke_subscriber", func(ctx context.Context) error {
			return s.roles.RevokeSubscriberRole(ctx, discordID)
		})
	}
	return outcome, nil
}

// apply runs the subscription update under the ledger claim. The returned
// user is nil for duplicates and for events matching no user.
func (s *Service) apply(ctx context.Context, event *stripe.Event, update users.SubscriptionUpdate) (*userRef, webhooks.Outcome, error) {
	var matched *userRef
	outcome, err := s.runner.Run(ctx, provider, event.ID, string(event.Type), func(ctx context.Context, tx *gorm.DB, rec audit.Recorder) error {
		user, err := s.users.WithTx(tx, rec).SetSubscriptionStatus(ctx, update)
		if err != nil {
			return err
		}
		if user != nil {
			matched = &userRef{DiscordID: user.DiscordID}
		}
		return nil
	})
	if err != nil {
		return nil, outcome, err
	}
	if outcome != webhooks.OutcomeProcessed {
		return nil, outcome, nil
	}
	return matched, outcome, nil
}

type userRef struct {
	DiscordID *string
}

func customerIDOf(customer *stripe.Customer) string {
	if customer == nil {
		return ""
	}
	return strings.TrimSpace(customer.ID)
}

func eventTime(event *stripe.Event) *time.Time {
	if event.Created <= 0 {
		return nil
	}
	ts := time.Unix(event.Created, 0).UTC()
	return &ts
}
