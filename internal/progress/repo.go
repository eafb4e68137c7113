package progress

import (
	"context"
	"time"

	"github.com/angelmondragon/lessongate-backend/internal/repo"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertProgress(ctx context.Context, row *models.VideoProgress) error
	AddWatchTime(ctx context.Context, userID uuid.UUID, day string, seconds int64) error
	FindProgress(ctx context.Context, userID, videoID uuid.UUID) (*models.VideoProgress, error)
	RecentLogs(ctx context.Context, userID uuid.UUID, since string) ([]models.DailyLearningLog, error)
}

type repository struct {
	repo.Base
	now func() time.Time
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db), now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx), now: r.now}
}

// UpsertProgress writes the latest position. Completion is sticky.
func (r *repository) UpsertProgress(ctx context.Context, row *models.VideoProgress) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "video_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"position_seconds": gorm.Expr("excluded.position_seconds"),
			"completed":        gorm.Expr("video_progress.completed OR excluded.completed"),
			"last_watched_at":  gorm.Expr("excluded.last_watched_at"),
			"updated_at":       r.now().UTC(),
		}),
	}).Create(row).Error
}

// AddWatchTime increments the per-day counter, creating the row on first use.
func (r *repository) AddWatchTime(ctx context.Context, userID uuid.UUID, day string, seconds int64) error {
	row := &models.DailyLearningLog{UserID: userID, LogDate: day, SecondsWatched: seconds}
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "log_date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seconds_watched": gorm.Expr("daily_learning_logs.seconds_watched + excluded.seconds_watched"),
			"updated_at":      r.now().UTC(),
		}),
	}).Create(row).Error
}

func (r *repository) FindProgress(ctx context.Context, userID, videoID uuid.UUID) (*models.VideoProgress, error) {
	return repo.FindOne[models.VideoProgress](ctx, r.DB(ctx), "", "user_id = ? AND video_id = ?", userID, videoID)
}

// RecentLogs returns logs on or after since (YYYY-MM-DD), newest first.
func (r *repository) RecentLogs(ctx context.Context, userID uuid.UUID, since string) ([]models.DailyLearningLog, error) {
	var rows []models.DailyLearningLog
	err := r.DB(ctx).
		Where("user_id = ? AND log_date >= ?", userID, since).
		Order("log_date DESC").
		Find(&rows).Error
	return rows, err
}
