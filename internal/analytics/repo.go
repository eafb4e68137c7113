package analytics

import (
	"context"

	"github.com/angelmondragon/lessongate-backend/internal/repo"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"gorm.io/gorm"
)

type statusCount struct {
	Status string
	Total  int64
}

type dayTotal struct {
	LogDate string
	Seconds int64
}

// Repository runs the aggregate queries behind the report.
type Repository interface {
	UsersByStatus(ctx context.Context) ([]statusCount, error)
	CountAdmins(ctx context.Context) (int64, error)
	CountLinkedDiscord(ctx context.Context) (int64, error)
	CountVideos(ctx context.Context, published bool) (int64, error)
	SecondsByDay(ctx context.Context, start, end string) ([]dayTotal, error)
	CountActiveLearners(ctx context.Context, start, end string) (int64, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) UsersByStatus(ctx context.Context) ([]statusCount, error) {
	var rows []statusCount
	err := r.DB(ctx).Model(&models.User{}).
		Select("subscription_status AS status, COUNT(*) AS total").
		Group("subscription_status").
		Order("subscription_status").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.User{}).Where("is_admin = ?", true).Count(&n).Error
	return n, err
}

func (r *repository) CountLinkedDiscord(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.User{}).Where("discord_id IS NOT NULL").Count(&n).Error
	return n, err
}

func (r *repository) CountVideos(ctx context.Context, published bool) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.Video{}).Where("is_published = ?", published).Count(&n).Error
	return n, err
}

// SecondsByDay sums watch time per day over the inclusive date range.
func (r *repository) SecondsByDay(ctx context.Context, start, end string) ([]dayTotal, error) {
	var rows []dayTotal
	err := r.DB(ctx).Model(&models.DailyLearningLog{}).
		Select("log_date, SUM(seconds_watched) AS seconds").
		Where("log_date >= ? AND log_date <= ?", start, end).
		Group("log_date").
		Order("log_date").
		Scan(&rows).Error
	return rows, err
}

// CountActiveLearners counts users with at least one full minute on some day.
func (r *repository) CountActiveLearners(ctx context.Context, start, end string) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.DailyLearningLog{}).
		Where("log_date >= ? AND log_date <= ? AND seconds_watched >= ?", start, end, 60).
		Distinct("user_id").
		Count(&n).Error
	return n, err
}
