package videos

import (
	"context"
	"strings"

	"github.com/angelmondragon/lessongate-backend/internal/repo"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	"github.com/angelmondragon/lessongate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists catalog videos. Finders return (nil, nil) on a miss.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, video *models.Video) error
	Save(ctx context.Context, video *models.Video) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	FindBySource(ctx context.Context, source enums.VideoSource, ref string) (*models.Video, error)
	List(ctx context.Context, filter ListFilter) ([]models.Video, error)
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	PublishedOnly bool
	Search        string
	Limit         int
	Cursor        *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, video *models.Video) error {
	return r.db.WithContext(ctx).Create(video).Error
}

func (r *repository) Save(ctx context.Context, video *models.Video) error {
	return r.db.WithContext(ctx).Save(video).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Video{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindBySource(ctx context.Context, source enums.VideoSource, ref string) (*models.Video, error) {
	return r.first(ctx, "source = ? AND source_ref = ?", string(source), ref)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Video, error) {
	query := r.db.WithContext(ctx).Model(&models.Video{})
	if filter.PublishedOnly {
		query = query.Where("is_published = ?", true)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		query = query.Where("lower(title) LIKE ?", "%"+search+"%")
	}

	var rows []models.Video
	err := query.Scopes(pagination.Scope(filter.Cursor, filter.Limit)).Find(&rows).Error
	return rows, err
}

func (r *repository) first(ctx context.Context, query string, args ...any) (*models.Video, error) {
	return repo.FindOne[models.Video](ctx, r.db, "", query, args...)
}
