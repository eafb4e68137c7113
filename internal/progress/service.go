// Package progress tracks per-video watch position and daily learning time.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/lessongate-backend/pkg/db"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/entitlement"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	dateLayout = "2006-01-02"

	// maxWatchedPerUpdate caps client-reported watch time per call.
	maxWatchedPerUpdate = 3600
	streakWindowDays    = 366
)

// VideoGate resolves a video only when the viewer may watch it.
type VideoGate interface {
	Visible(ctx context.Context, viewer entitlement.Viewer, id uuid.UUID) (*models.Video, error)
}

type ServiceParams struct {
	Repo     Repository
	Videos   VideoGate
	TxRunner db.TxRunner
}

type Service struct {
	repo   Repository
	videos VideoGate
	tx     db.TxRunner
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("progress repo is required")
	}
	if params.Videos == nil {
		return nil, fmt.Errorf("video gate is required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	return &Service{repo: params.Repo, videos: params.Videos, tx: params.TxRunner, now: time.Now}, nil
}

// Update is one client progress report.
type Update struct {
	PositionSeconds int
	WatchedSeconds  int
	Completed       bool
}

// Record stores the viewer's position on an accessible video and adds the
// watched time to today's learning log.
func (s *Service) Record(ctx context.Context, viewer entitlement.Viewer, videoID uuid.UUID, update Update) (*models.VideoProgress, error) {
	userID, err := requireUser(viewer)
	if err != nil {
		return nil, err
	}
	if update.PositionSeconds < 0 || update.WatchedSeconds < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "position and watched seconds must be non-negative")
	}
	if update.WatchedSeconds > maxWatchedPerUpdate {
		update.WatchedSeconds = maxWatchedPerUpdate
	}
	if _, err := s.videos.Visible(ctx, viewer, videoID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	row := &models.VideoProgress{
		UserID:          userID,
		VideoID:         videoID,
		PositionSeconds: update.PositionSeconds,
		Completed:       update.Completed,
		LastWatchedAt:   now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpsertProgress(ctx, row); err != nil {
			return err
		}
		if update.WatchedSeconds > 0 {
			return repo.AddWatchTime(ctx, userID, now.Format(dateLayout), int64(update.WatchedSeconds))
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record progress")
	}
	return s.Get(ctx, viewer, videoID)
}

// Get returns the viewer's progress on a video, or (nil, nil) when none.
func (s *Service) Get(ctx context.Context, viewer entitlement.Viewer, videoID uuid.UUID) (*models.VideoProgress, error) {
	userID, err := requireUser(viewer)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.FindProgress(ctx, userID, videoID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load progress")
	}
	return row, nil
}

// Streak summarises recent learning activity.
type Streak struct {
	CurrentDays  int   `json:"current_days"`
	TodayMinutes int64 `json:"today_minutes"`
	WeekMinutes  int64 `json:"week_minutes"`
}

// Streak counts consecutive days with at least one minute watched, ending
// today or, when nothing is logged yet today, yesterday.
func (s *Service) Streak(ctx context.Context, viewer entitlement.Viewer) (*Streak, error) {
	userID, err := requireUser(viewer)
	if err != nil {
		return nil, err
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -streakWindowDays).Format(dateLayout)
	logs, err := s.repo.RecentLogs(ctx, userID, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load learning logs")
	}

	minutes := make(map[string]int64, len(logs))
	for _, l := range logs {
		minutes[l.LogDate] = l.MinutesWatched()
	}

	out := &Streak{TodayMinutes: minutes[today.Format(dateLayout)]}
	for i := 0; i < 7; i++ {
		out.WeekMinutes += minutes[today.AddDate(0, 0, -i).Format(dateLayout)]
	}

	day := today
	if out.TodayMinutes == 0 {
		day = day.AddDate(0, 0, -1)
	}
	for minutes[day.Format(dateLayout)] > 0 {
		out.CurrentDays++
		day = day.AddDate(0, 0, -1)
	}
	return out, nil
}

func requireUser(viewer entitlement.Viewer) (uuid.UUID, error) {
	if !viewer.Authenticated || viewer.UserID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return *viewer.UserID, nil
}
