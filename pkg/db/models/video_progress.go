package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VideoProgress is the per-(user, video) watch state.
type VideoProgress struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:video_progress_user_video"`
	VideoID         uuid.UUID `gorm:"column:video_id;type:uuid;not null;uniqueIndex:video_progress_user_video"`
	PositionSeconds int       `gorm:"column:position_seconds;not null;default:0"`
	Completed       bool      `gorm:"column:completed;not null;default:false"`
	LastWatchedAt   time.Time `gorm:"column:last_watched_at"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (VideoProgress) TableName() string { return "video_progress" }

func (p *VideoProgress) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// DailyLearningLog aggregates watch time per user and calendar day (UTC).
type DailyLearningLog struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:daily_learning_logs_user_date"`
	LogDate        string    `gorm:"column:log_date;not null;uniqueIndex:daily_learning_logs_user_date"`
	SecondsWatched int64     `gorm:"column:seconds_watched;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DailyLearningLog) TableName() string { return "daily_learning_logs" }

func (l *DailyLearningLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// MinutesWatched reports the accumulated watch time in whole minutes.
func (l DailyLearningLog) MinutesWatched() int64 {
	return l.SecondsWatched / 60
}
