// Package discord reconciles guild role membership into the identity store.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// RoleSource is the guild REST surface used by the service.
type RoleSource interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// IdentityStore is the part of the users service role sync writes through.
type IdentityStore interface {
	FindBySubject(ctx context.Context, subject string) (*models.User, error)
	SetDiscordRoles(ctx context.Context, caller users.Caller, subject string, roles []string) (*models.User, error)
}

type ServiceParams struct {
	Client           RoleSource
	Users            IdentityStore
	Cache            *RoleCache
	GuildID          string
	SubscriberRoleID string
	Logger           *logger.Logger
}

type Service struct {
	client       RoleSource
	users        IdentityStore
	cache        *RoleCache
	guildID      string
	subscriberID string
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("discord client is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users service is required")
	}
	if strings.TrimSpace(params.GuildID) == "" {
		return nil, fmt.Errorf("discord guild id is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		client:       params.Client,
		users:        params.Users,
		cache:        params.Cache,
		guildID:      params.GuildID,
		subscriberID: strings.TrimSpace(params.SubscriberRoleID),
		logg:         params.Logger,
	}, nil
}

// SyncMemberRoles copies the guild roles of subject's Discord account into
// the identity store. Users may sync themselves; internal and system callers
// may sync anyone. A member who left the guild ends up with no roles.
func (s *Service) SyncMemberRoles(ctx context.Context, caller users.Caller, subject string) (*models.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject is required")
	}
	if !caller.Privileged() && !(caller.Kind == users.CallerUser && caller.Subject == subject) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot sync another user")
	}

	user, err := s.users.FindBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if user.DiscordID == nil || *user.DiscordID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "discord account not linked")
	}

	roles, err := s.memberRoles(ctx, *user.DiscordID)
	if err != nil {
		return nil, err
	}
	return s.users.SetDiscordRoles(ctx, users.SystemCaller("discord-sync"), subject, roles)
}

func (s *Service) memberRoles(ctx context.Context, discordID string) ([]string, error) {
	if roles, ok := s.cache.Get(discordID); ok {
		return roles, nil
	}
	roles, err := s.client.MemberRoles(ctx, s.guildID, discordID)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		s.logg.Info(s.logg.WithField(ctx, "discord_id", discordID), "discord.member_not_in_guild")
		roles, err = []string{}, nil
	}
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "discord_id", discordID), "discord.member_roles_failed", err)
		return nil, err
	}
	s.cache.Set(discordID, roles)
	return roles, nil
}

// GrantSubscriberRole adds the configured subscriber role in the guild. It is
// a no-op when no subscriber role is configured.
func (s *Service) GrantSubscriberRole(ctx context.Context, discordID string) error {
	if s.subscriberID == "" || discordID == "" {
		return nil
	}
	defer s.cache.Invalidate(discordID)
	return s.client.AddRole(ctx, s.guildID, discordID, s.subscriberID)
}

// RevokeSubscriberRole removes the configured subscriber role. A member no
// longer in the guild counts as revoked.
func (s *Service) RevokeSubscriberRole(ctx context.Context, discordID string) error {
	if s.subscriberID == "" || discordID == "" {
		return nil
	}
	defer s.cache.Invalidate(discordID)
	err := s.client.RemoveRole(ctx, s.guildID, discordID, s.subscriberID)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil
	}
	return err
}

// SubscriberRoleID is the role granted on checkout; empty when unset.
func (s *Service) SubscriberRoleID() string {
	return s.subscriberID
}
