package users

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/lessongate-backend/internal/repo"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	"github.com/angelmondragon/lessongate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists identity records. Finders return (nil, nil) on a miss.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindBySubject(ctx context.Context, subject string) (*models.User, error)
	FindByDiscordID(ctx context.Context, discordID string) (*models.User, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ClaimByEmail(ctx context.Context, email, subject string) (*models.User, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	UpdateRoles(ctx context.Context, id uuid.UUID, expectedVersion int64, roles dbtypes.StringArray) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.User, error)
	ListLinked(ctx context.Context, after uuid.UUID, limit int) ([]models.User, error)
}

// ListFilter narrows admin user listings.
type ListFilter struct {
	Status *enums.SubscriptionStatus
	Email  string
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository binds a repository to the provided database handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindBySubject(ctx context.Context, subject string) (*models.User, error) {
	return r.first(ctx, "external_subject = ?", subject)
}

func (r *repository) FindByDiscordID(ctx context.Context, discordID string) (*models.User, error) {
	return r.first(ctx, "discord_id = ?", discordID)
}

func (r *repository) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	return r.first(ctx, "stripe_customer_id = ?", customerID)
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "lower(email) = ?", normalizeEmail(email))
}

// ClaimByEmail attaches subject to the oldest unclaimed row with the email.
// The update re-checks external_subject so a concurrent claim wins cleanly.
func (r *repository) ClaimByEmail(ctx context.Context, email, subject string) (*models.User, error) {
	candidate, err := r.firstOrdered(ctx, "created_at ASC",
		"lower(email) = ? AND external_subject IS NULL", normalizeEmail(email))
	if err != nil || candidate == nil {
		return nil, err
	}

	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND external_subject IS NULL", candidate.ID).
		Updates(map[string]any{
			"external_subject": subject,
			"updated_at":       r.now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.FindByID(ctx, candidate.ID)
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateRoles swaps the role set only if roles_version still matches.
func (r *repository) UpdateRoles(ctx context.Context, id uuid.UUID, expectedVersion int64, roles dbtypes.StringArray) (bool, error) {
	if roles == nil {
		roles = dbtypes.StringArray{}
	}
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND roles_version = ?", id, expectedVersion).
		Updates(map[string]any{
			"discord_roles": roles,
			"roles_version": gorm.Expr("roles_version + 1"),
			"updated_at":    r.now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if filter.Status != nil {
		query = query.Where("subscription_status = ?", string(*filter.Status))
	}
	if email := normalizeEmail(filter.Email); email != "" {
		query = query.Where("lower(email) LIKE ?", "%"+email+"%")
	}

	var rows []models.User
	err := query.Scopes(pagination.Scope(filter.Cursor, filter.Limit)).Find(&rows).Error
	return rows, err
}

// ListLinked pages through users with both a subject and a Discord ID, in id order.
func (r *repository) ListLinked(ctx context.Context, after uuid.UUID, limit int) ([]models.User, error) {
	var rows []models.User
	err := r.db.WithContext(ctx).
		Where("discord_id IS NOT NULL AND external_subject IS NOT NULL AND id > ?", after).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	return repo.FindOne[models.User](ctx, r.db, "", query, args...)
}

func (r *repository) firstOrdered(ctx context.Context, order, query string, args ...any) (*models.User, error) {
	return repo.FindOne[models.User](ctx, r.db, order, query, args...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
