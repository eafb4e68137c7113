// Package clerkwebhook syncs auth-provider user lifecycle events into the
// identity store.
package clerkwebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	provider = string(enums.WebhookProviderClerk)

	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"

	discordProvider = "oauth_discord"
	verifiedStatus  = "verified"
)

// Event is the Clerk webhook envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UserData is the subset of the Clerk user object the service reads.
type UserData struct {
	ID                    string            `json:"id"`
	FirstName             *string           `json:"first_name"`
	LastName              *string           `json:"last_name"`
	Username              *string           `json:"username"`
	ImageURL              string            `json:"image_url"`
	PrimaryEmailAddressID string            `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress    `json:"email_addresses"`
	ExternalAccounts      []ExternalAccount `json:"external_accounts"`
	Deleted               bool              `json:"deleted"`
}

type EmailAddress struct {
	ID           string        `json:"id"`
	EmailAddress string        `json:"email_address"`
	Verification *Verification `json:"verification"`
}

type Verification struct {
	Status string `json:"status"`
}

func (e EmailAddress) Verified() bool {
	return e.Verification != nil && e.Verification.Status == verifiedStatus
}

type ExternalAccount struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
}

// PrimaryEmail returns the primary address and whether it is verified.
// Secondary addresses are never used.
func (u UserData) PrimaryEmail() (string, bool) {
	if u.PrimaryEmailAddressID == "" {
		return "", false
	}
	for _, addr := range u.EmailAddresses {
		if addr.ID == u.PrimaryEmailAddressID {
			return addr.EmailAddress, addr.Verified()
		}
	}
	return "", false
}

// DiscordID returns the linked Discord account id, if any.
func (u UserData) DiscordID() string {
	for _, account := range u.ExternalAccounts {
		if account.Provider == discordProvider {
			return strings.TrimSpace(account.ProviderUserID)
		}
	}
	return ""
}

// DisplayName joins first and last name, falling back to the username.
func (u UserData) DisplayName() string {
	var parts []string
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if u.Username != nil {
		return strings.TrimSpace(*u.Username)
	}
	return ""
}

type ServiceParams struct {
	Users            *users.Service
	Runner           *webhooks.Runner
	IsBootstrapAdmin func(subject, email string) bool
	Logger           *logger.Logger
}

type Service struct {
	users     *users.Service
	runner    *webhooks.Runner
	bootstrap func(subject, email string) bool
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users service required")
	}
	if params.Runner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook runner required")
	}
	if params.IsBootstrapAdmin == nil {
		params.IsBootstrapAdmin = func(string, string) bool { return false }
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		users:     params.Users,
		runner:    params.Runner,
		bootstrap: params.IsBootstrapAdmin,
		logg:      params.Logger,
	}, nil
}

// HandleEvent applies a verified delivery identified by its svix message id.
func (s *Service) HandleEvent(ctx context.Context, messageID string, body []byte) (webhooks.Outcome, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return webhooks.OutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode clerk event")
	}
	ctx = s.logg.WithEvent(ctx, provider, messageID)

	switch event.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
	default:
		s.logg.Debug(s.logg.WithField(ctx, "event_type", event.Type), "clerk.event_ignored")
		return webhooks.OutcomeIgnored, nil
	}

	var data UserData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return webhooks.OutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode clerk user")
	}
	subject := strings.TrimSpace(data.ID)
	if subject == "" {
		return webhooks.OutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "clerk user id missing")
	}

	return s.runner.Run(ctx, provider, messageID, event.Type, func(ctx context.Context, tx *gorm.DB, rec audit.Recorder) error {
		if event.Type == EventUserDeleted {
			rec.Record(ctx, audit.Entry{
				Action:     audit.ActionUserDeleted,
				TargetType: audit.TargetUser,
				TargetID:   subject,
				Detail:     "deleted at auth provider",
			})
			return nil
		}

		email, verified := data.PrimaryEmail()
		adminEmail := ""
		if verified {
			adminEmail = email
		}
		_, err := s.users.WithTx(tx, rec).UpsertByExternalSubject(ctx, subject, users.ProfileFields{
			Email:         email,
			EmailVerified: verified,
			Name:          data.DisplayName(),
			ImageURL:      data.ImageURL,
			DiscordID:     data.DiscordID(),
		}, s.bootstrap(subject, adminEmail))
		return err
	})
}
