package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/pkg/db"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultRoleRetries = 5

// ProfileFields are the provider-owned attributes merged on upsert. Empty
// values leave the stored field untouched.
type ProfileFields struct {
	Email string
	// EmailVerified gates linking to a pre-existing record by email.
	EmailVerified bool
	Name          string
	ImageURL      string
	DiscordID     string
}

// LookupKind selects the secondary key used by reconcilers.
type LookupKind string

const (
	LookupSubject        LookupKind = "subject"
	LookupDiscordID      LookupKind = "discord_id"
	LookupStripeCustomer LookupKind = "stripe_customer_id"
)

type Lookup struct {
	Kind  LookupKind
	Value string
}

func BySubject(subject string) Lookup     { return Lookup{Kind: LookupSubject, Value: subject} }
func ByDiscordID(discordID string) Lookup { return Lookup{Kind: LookupDiscordID, Value: discordID} }
func ByStripeCustomer(customer string) Lookup {
	return Lookup{Kind: LookupStripeCustomer, Value: customer}
}

func (l Lookup) String() string {
	return fmt.Sprintf("%s=%s", l.Kind, l.Value)
}

// SubscriptionUpdate is a billing reconciliation merged into one user.
type SubscriptionUpdate struct {
	Lookup           Lookup
	Status           enums.SubscriptionStatus
	Plan             *string
	StripeCustomerID string
	RoleToAppend     string
	RoleToRemove     string
	EventAt          *time.Time
}

// ServiceParams wires the identity service.
type ServiceParams struct {
	Repo        Repository
	Audit       audit.Recorder
	Logger      *logger.Logger
	RoleRetries int
}

type Service struct {
	repo        Repository
	audit       audit.Recorder
	logg        *logger.Logger
	roleRetries int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("users repo is required")
	}
	if params.Audit == nil {
		params.Audit = audit.Nop{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.RoleRetries <= 0 {
		params.RoleRetries = defaultRoleRetries
	}
	return &Service{
		repo:        params.Repo,
		audit:       params.Audit,
		logg:        params.Logger,
		roleRetries: params.RoleRetries,
	}, nil
}

// WithTx returns a copy bound to tx that records audit entries into rec.
func (s *Service) WithTx(tx *gorm.DB, rec audit.Recorder) *Service {
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	if rec != nil {
		clone.audit = rec
	}
	return &clone
}

// UpsertByExternalSubject creates or merges the user owning subject.
func (s *Service) UpsertByExternalSubject(ctx context.Context, subject string, profile ProfileFields, isAdminOverride bool) (*models.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external subject is required")
	}
	profile.Email = normalizeEmail(profile.Email)
	profile.DiscordID = strings.TrimSpace(profile.DiscordID)

	user, err := s.repo.FindBySubject(ctx, subject)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if user == nil && profile.Email != "" && profile.EmailVerified {
		if user, err = s.LinkByEmailIfUnclaimed(ctx, profile.Email, subject); err != nil {
			return nil, err
		}
	}

	created := false
	if user == nil {
		user, created, err = s.create(ctx, subject, profile, isAdminOverride)
		if err != nil {
			return nil, err
		}
	}
	if !created {
		if user, err = s.merge(ctx, user, profile, isAdminOverride); err != nil {
			return nil, err
		}
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionUserUpsert,
		TargetType: audit.TargetUser,
		TargetID:   user.ID.String(),
		Detail:     fmt.Sprintf("subject=%s created=%t", subject, created),
	})
	return user, nil
}

func (s *Service) create(ctx context.Context, subject string, profile ProfileFields, isAdmin bool) (*models.User, bool, error) {
	user := &models.User{
		ExternalSubject: &subject,
		Email:           profile.Email,
		Name:            profile.Name,
		IsAdmin:         isAdmin,
		DiscordRoles:    dbtypes.StringArray{},
	}
	if profile.ImageURL != "" {
		image := profile.ImageURL
		user.ImageURL = &image
	}
	if profile.DiscordID != "" {
		free, err := s.discordIDFree(ctx, profile.DiscordID, uuid.Nil)
		if err != nil {
			return nil, false, err
		}
		if free {
			discordID := profile.DiscordID
			user.DiscordID = &discordID
		}
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}
		// lost a race with a concurrent upsert for the same subject
		existing, findErr := s.repo.FindBySubject(ctx, subject)
		if findErr != nil || existing == nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already exists")
		}
		return existing, false, nil
	}
	return user, true, nil
}

func (s *Service) merge(ctx context.Context, user *models.User, profile ProfileFields, isAdminOverride bool) (*models.User, error) {
	fields := map[string]any{}
	if profile.Email != "" && profile.Email != user.Email {
		fields["email"] = profile.Email
	}
	if profile.Name != "" && profile.Name != user.Name {
		fields["name"] = profile.Name
	}
	if profile.ImageURL != "" && (user.ImageURL == nil || *user.ImageURL != profile.ImageURL) {
		fields["image_url"] = profile.ImageURL
	}
	if profile.DiscordID != "" && (user.DiscordID == nil || *user.DiscordID != profile.DiscordID) {
		free, err := s.discordIDFree(ctx, profile.DiscordID, user.ID)
		if err != nil {
			return nil, err
		}
		if free {
			fields["discord_id"] = profile.DiscordID
		}
	}
	if isAdminOverride && !user.IsAdmin {
		fields["is_admin"] = true
	}
	if len(fields) == 0 {
		return user, nil
	}

	if err := s.repo.UpdateFields(ctx, user.ID, fields); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "profile conflicts with another user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user")
	}
	return s.mustFind(ctx, user.ID)
}

func (s *Service) discordIDFree(ctx context.Context, discordID string, owner uuid.UUID) (bool, error) {
	holder, err := s.repo.FindByDiscordID(ctx, discordID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup discord id")
	}
	if holder != nil && holder.ID != owner {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"discord_id": discordID,
			"holder_id":  holder.ID.String(),
		}), "user.discord_id_taken")
		return false, nil
	}
	return true, nil
}

// LinkByEmailIfUnclaimed attaches subject to a pre-existing record with the
// same email whose subject is unset. Claimed records are never touched; a
// miss returns (nil, nil).
func (s *Service) LinkByEmailIfUnclaimed(ctx context.Context, email, subject string) (*models.User, error) {
	email = normalizeEmail(email)
	subject = strings.TrimSpace(subject)
	if email == "" || subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and subject are required")
	}

	user, err := s.repo.ClaimByEmail(ctx, email, subject)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link user by email")
	}
	if user == nil {
		return nil, nil
	}

	s.logg.Info(s.logg.WithField(ctx, "user_id", user.ID.String()), "user.linked_by_email")
	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionUserLink,
		TargetType: audit.TargetUser,
		TargetID:   user.ID.String(),
		Detail:     "subject=" + subject,
	})
	return user, nil
}

// SetDiscordRoles replaces the role set. Only internal and system callers may
// write it.
func (s *Service) SetDiscordRoles(ctx context.Context, caller Caller, subject string, roles []string) (*models.User, error) {
	if !caller.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "privileged caller required")
	}
	user, err := s.Resolve(ctx, BySubject(subject))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	next := dbtypes.Normalize(roles)
	updated, changed, err := s.mutateRoles(ctx, user, func(dbtypes.StringArray) dbtypes.StringArray {
		return next
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.audit.Record(ctx, audit.Entry{
			Action:     audit.ActionUserRoles,
			TargetType: audit.TargetUser,
			TargetID:   updated.ID.String(),
			Detail:     fmt.Sprintf("set by %s: %s", callerLabel(caller), strings.Join(next, ",")),
		})
	}
	return updated, nil
}

// AddRole appends roleID if absent. A miss returns (nil, nil).
func (s *Service) AddRole(ctx context.Context, lookup Lookup, roleID string) (*models.User, error) {
	return s.changeRole(ctx, lookup, roleID, true)
}

// RemoveRole drops roleID if present. A miss returns (nil, nil).
func (s *Service) RemoveRole(ctx context.Context, lookup Lookup, roleID string) (*models.User, error) {
	return s.changeRole(ctx, lookup, roleID, false)
}

func (s *Service) changeRole(ctx context.Context, lookup Lookup, roleID string, add bool) (*models.User, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role id is required")
	}
	user, err := s.Resolve(ctx, lookup)
	if err != nil || user == nil {
		return nil, err
	}
	updated, changed, err := s.mutateRoles(ctx, user, func(current dbtypes.StringArray) dbtypes.StringArray {
		if add {
			return withRole(current, roleID)
		}
		return withoutRole(current, roleID)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		verb := "removed"
		if add {
			verb = "added"
		}
		s.audit.Record(ctx, audit.Entry{
			Action:     audit.ActionUserRoles,
			TargetType: audit.TargetUser,
			TargetID:   updated.ID.String(),
			Detail:     fmt.Sprintf("%s %s", verb, roleID),
		})
	}
	return updated, nil
}

// mutateRoles applies fn with roles_version compare-and-swap, re-reading the
// row after each lost race.
func (s *Service) mutateRoles(ctx context.Context, user *models.User, fn func(dbtypes.StringArray) dbtypes.StringArray) (*models.User, bool, error) {
	current := user
	for attempt := 0; attempt < s.roleRetries; attempt++ {
		next := fn(current.DiscordRoles)
		if sameRoles(current.DiscordRoles, next) {
			return current, false, nil
		}
		ok, err := s.repo.UpdateRoles(ctx, current.ID, current.RolesVersion, next)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update roles")
		}
		if ok {
			updated := *current
			updated.DiscordRoles = next
			updated.RolesVersion++
			return &updated, true, nil
		}
		s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt+1), "user.roles_version_conflict")
		if current, err = s.mustFind(ctx, current.ID); err != nil {
			return nil, false, err
		}
	}
	return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "role set changed concurrently")
}

// SetSubscriptionStatus merges a billing event into the matched user. Writes
// are last-write-wins; an event older than the stored one is applied but
// logged. A miss returns (nil, nil).
func (s *Service) SetSubscriptionStatus(ctx context.Context, update SubscriptionUpdate) (*models.User, error) {
	if strings.TrimSpace(string(update.Status)) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription status is required")
	}
	user, err := s.Resolve(ctx, update.Lookup)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.logg.Warn(s.logg.WithField(ctx, "lookup", update.Lookup.String()), "subscription.user_not_found")
		return nil, nil
	}

	if update.EventAt != nil && user.SubscriptionEventAt != nil && update.EventAt.Before(*user.SubscriptionEventAt) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"user_id":   user.ID.String(),
			"event_at":  update.EventAt.UTC().Format(time.RFC3339),
			"stored_at": user.SubscriptionEventAt.UTC().Format(time.RFC3339),
			"status":    string(update.Status),
		}), "subscription.out_of_order")
	}

	fields := map[string]any{"subscription_status": string(update.Status)}
	if update.Plan != nil {
		fields["subscription_plan"] = *update.Plan
	}
	if customer := strings.TrimSpace(update.StripeCustomerID); customer != "" {
		fields["stripe_customer_id"] = customer
	}
	if update.EventAt != nil {
		fields["subscription_event_at"] = update.EventAt.UTC()
	}
	if err := s.repo.UpdateFields(ctx, user.ID, fields); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "stripe customer linked to another user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update subscription")
	}

	if user, err = s.mustFind(ctx, user.ID); err != nil {
		return nil, err
	}
	if update.RoleToAppend != "" {
		if user, _, err = s.mutateRoles(ctx, user, func(current dbtypes.StringArray) dbtypes.StringArray {
			return withRole(current, update.RoleToAppend)
		}); err != nil {
			return nil, err
		}
	}
	if update.RoleToRemove != "" {
		if user, _, err = s.mutateRoles(ctx, user, func(current dbtypes.StringArray) dbtypes.StringArray {
			return withoutRole(current, update.RoleToRemove)
		}); err != nil {
			return nil, err
		}
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionUserSubscription,
		TargetType: audit.TargetUser,
		TargetID:   user.ID.String(),
		Detail:     "status=" + string(update.Status),
	})
	return user, nil
}

// Resolve finds a user by any supported key. A miss returns (nil, nil).
func (s *Service) Resolve(ctx context.Context, lookup Lookup) (*models.User, error) {
	value := strings.TrimSpace(lookup.Value)
	if value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lookup value is required")
	}
	var (
		user *models.User
		err  error
	)
	switch lookup.Kind {
	case LookupSubject:
		user, err = s.repo.FindBySubject(ctx, value)
	case LookupDiscordID:
		user, err = s.repo.FindByDiscordID(ctx, value)
	case LookupStripeCustomer:
		user, err = s.repo.FindByStripeCustomerID(ctx, value)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported lookup")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	return user, nil
}

// FindBySubject returns the user or (nil, nil) when the subject is unsynced.
func (s *Service) FindBySubject(ctx context.Context, subject string) (*models.User, error) {
	return s.Resolve(ctx, BySubject(subject))
}

func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return user, nil
}

// FindByEmail returns the user or (nil, nil).
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if normalizeEmail(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	return user, nil
}

// ProfileUpdate carries self-service edits; nil fields are left unchanged.
type ProfileUpdate struct {
	Name     *string
	ImageURL *string
}

// UpdateProfile edits the caller's own name and avatar.
func (s *Service) UpdateProfile(ctx context.Context, caller Caller, update ProfileUpdate) (*models.User, error) {
	if caller.Kind != CallerUser || caller.UserID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	fields := map[string]any{}
	if update.Name != nil {
		fields["name"] = strings.TrimSpace(*update.Name)
	}
	if update.ImageURL != nil {
		image := strings.TrimSpace(*update.ImageURL)
		if image == "" {
			fields["image_url"] = nil
		} else {
			fields["image_url"] = image
		}
	}
	if len(fields) == 0 {
		return s.FindByID(ctx, *caller.UserID)
	}
	if err := s.repo.UpdateFields(ctx, *caller.UserID, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    caller.ActorID(),
		Action:     audit.ActionUserProfile,
		TargetType: audit.TargetUser,
		TargetID:   caller.UserID.String(),
	})
	return s.FindByID(ctx, *caller.UserID)
}

// ListResult is one page of users.
type ListResult struct {
	Users      []models.User
	NextCursor string
}

// List pages users newest first. Admin only.
func (s *Service) List(ctx context.Context, caller Caller, filter ListFilter) (*ListResult, error) {
	if !caller.IsAdmin && !caller.Privileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin required")
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	page, next := pagination.Trim(rows, filter.Limit, func(u models.User) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})
	return &ListResult{Users: page, NextCursor: next}, nil
}

// ListLinked pages users that have a Discord account attached.
func (s *Service) ListLinked(ctx context.Context, after uuid.UUID, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	rows, err := s.repo.ListLinked(ctx, after, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list linked users")
	}
	return rows, nil
}

// Promote grants the admin flag to the user matching subject or email.
// The flag only escalates.
func (s *Service) Promote(ctx context.Context, caller Caller, subjectOrEmail string) (*models.User, error) {
	if caller.Kind != CallerSystem {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "promotion is operator only")
	}
	key := strings.TrimSpace(subjectOrEmail)
	user, err := s.FindBySubject(ctx, key)
	if err != nil {
		return nil, err
	}
	if user == nil && strings.Contains(key, "@") {
		if user, err = s.FindByEmail(ctx, key); err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if user.IsAdmin {
		return user, nil
	}
	if err := s.repo.UpdateFields(ctx, user.ID, map[string]any{"is_admin": true}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promote user")
	}
	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionUserPromote,
		TargetType: audit.TargetUser,
		TargetID:   user.ID.String(),
		Detail:     "by " + callerLabel(caller),
	})
	return s.mustFind(ctx, user.ID)
}

func (s *Service) mustFind(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return user, nil
}

func callerLabel(c Caller) string {
	if c.Name != "" {
		return string(c.Kind) + ":" + c.Name
	}
	return string(c.Kind)
}

func withRole(current dbtypes.StringArray, role string) dbtypes.StringArray {
	if current.Contains(role) {
		return current
	}
	next := make(dbtypes.StringArray, 0, len(current)+1)
	next = append(next, current...)
	return append(next, role)
}

func withoutRole(current dbtypes.StringArray, role string) dbtypes.StringArray {
	next := make(dbtypes.StringArray, 0, len(current))
	for _, r := range current {
		if r != role {
			next = append(next, r)
		}
	}
	return next
}

func sameRoles(a, b dbtypes.StringArray) bool {
	if len(a) != len(b) {
		return false
	}
	for _, role := range b {
		if !a.Contains(role) {
			return false
		}
	}
	return true
}
