package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lessongate-backend/api/middleware"
	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/api/validators"
	"github.com/angelmondragon/lessongate-backend/internal/progress"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/entitlement"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// ProgressService tracks per-video position and daily watch time.
type ProgressService interface {
	Record(ctx context.Context, viewer entitlement.Viewer, videoID uuid.UUID, update progress.Update) (*models.VideoProgress, error)
	Get(ctx context.Context, viewer entitlement.Viewer, videoID uuid.UUID) (*models.VideoProgress, error)
	Streak(ctx context.Context, viewer entitlement.Viewer) (*progress.Streak, error)
}

type progressView struct {
	VideoID         uuid.UUID  `json:"video_id"`
	PositionSeconds int        `json:"position_seconds"`
	Completed       bool       `json:"completed"`
	LastWatchedAt   *time.Time `json:"last_watched_at,omitempty"`
}

func newProgressView(videoID uuid.UUID, p *models.VideoProgress) progressView {
	if p == nil {
		return progressView{VideoID: videoID}
	}
	at := p.LastWatchedAt
	return progressView{
		VideoID:         p.VideoID,
		PositionSeconds: p.PositionSeconds,
		Completed:       p.Completed,
		LastWatchedAt:   &at,
	}
}

type progressRequest struct {
	PositionSeconds int  `json:"position_seconds" validate:"min=0"`
	WatchedSeconds  int  `json:"watched_seconds" validate:"min=0"`
	Completed       bool `json:"completed"`
}

// ProgressGet returns the caller's position; an unwatched video reports zero.
func ProgressGet(svc ProgressService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "progress service unavailable"))
			return
		}
		videoID, err := uuidParam(r, "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		p, err := svc.Get(r.Context(), middleware.ViewerFromContext(r.Context()), videoID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProgressView(videoID, p))
	}
}

func ProgressPut(svc ProgressService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "progress service unavailable"))
			return
		}
		videoID, err := uuidParam(r, "videoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body progressRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		p, err := svc.Record(r.Context(), middleware.ViewerFromContext(r.Context()), videoID, progress.Update{
			PositionSeconds: body.PositionSeconds,
			WatchedSeconds:  body.WatchedSeconds,
			Completed:       body.Completed,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProgressView(videoID, p))
	}
}

func ProgressStreak(svc ProgressService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "progress service unavailable"))
			return
		}
		streak, err := svc.Streak(r.Context(), middleware.ViewerFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, streak)
	}
}
