package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/lessongate-backend/api/middleware"
	"github.com/angelmondragon/lessongate-backend/api/responses"
	"github.com/angelmondragon/lessongate-backend/api/validators"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/internal/videos"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/entitlement"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// VideoAdmin is the write side of the videos service.
type VideoAdmin interface {
	FindByID(ctx context.Context, caller users.Caller, id uuid.UUID) (*models.Video, error)
	Create(ctx context.Context, caller users.Caller, input videos.Input) (*models.Video, error)
	Update(ctx context.Context, caller users.Caller, id uuid.UUID, patch videos.Patch) (*models.Video, error)
	SetPublished(ctx context.Context, caller users.Caller, id uuid.UUID, published bool) (*models.Video, error)
	SetRequiredRoles(ctx context.Context, caller users.Caller, id uuid.UUID, roles []string) (*models.Video, error)
	Delete(ctx context.Context, caller users.Caller, id uuid.UUID) error
}

type videoCreateRequest struct {
	Title           string            `json:"title" validate:"required,max=200"`
	Description     *string           `json:"description,omitempty"`
	MuxAssetID      *string           `json:"mux_asset_id,omitempty"`
	MuxPlaybackID   *string           `json:"mux_playback_id,omitempty"`
	ThumbnailURL    *string           `json:"thumbnail_url,omitempty" validate:"omitempty,url"`
	Transcript      *string           `json:"transcript,omitempty"`
	AISummary       *string           `json:"ai_summary,omitempty"`
	Chapters        []dbtypes.Chapter `json:"chapters,omitempty" validate:"dive"`
	RequiredRoles   []string          `json:"required_roles,omitempty" validate:"dive,snowflake"`
	DurationSeconds *int              `json:"duration_seconds,omitempty" validate:"omitempty,min=0"`
	Tags            []string          `json:"tags,omitempty"`
	IsPublished     bool              `json:"is_published"`
}

type videoPatchRequest struct {
	Title           *string            `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description     *string            `json:"description,omitempty"`
	MuxAssetID      *string            `json:"mux_asset_id,omitempty"`
	MuxPlaybackID   *string            `json:"mux_playback_id,omitempty"`
	ThumbnailURL    *string            `json:"thumbnail_url,omitempty" validate:"omitempty,url"`
	Transcript      *string            `json:"transcript,omitempty"`
	AISummary       *string            `json:"ai_summary,omitempty"`
	Chapters        *[]dbtypes.Chapter `json:"chapters,omitempty"`
	DurationSeconds *int               `json:"duration_seconds,omitempty" validate:"omitempty,min=0"`
	Tags            *[]string          `json:"tags,omitempty"`
}

type publishRequest struct {
	Published *bool `json:"published" validate:"required"`
}

type rolesRequest struct {
	Roles []string `json:"roles" validate:"dive,snowflake"`
}

func adminView(video *models.Video) entitlement.VideoView {
	return entitlement.Sanitize(video, true)
}

func AdminVideoGet(svc VideoAdmin, logg *logger.Logger) http.HandlerFunc {
	return adminVideoHandler(svc, logg, func(r *http.Request, caller users.Caller, id uuid.UUID) (*models.Video, error) {
		return svc.FindByID(r.Context(), caller, id)
	})
}

func AdminVideoCreate(svc VideoAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "video service unavailable"))
			return
		}
		var body videoCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		video, err := svc.Create(r.Context(), middleware.CallerFromContext(r.Context()), videos.Input{
			Title:           validators.SanitizeString(body.Title, 200),
			Description:     body.Description,
			MuxAssetID:      body.MuxAssetID,
			MuxPlaybackID:   body.MuxPlaybackID,
			ThumbnailURL:    body.ThumbnailURL,
			Transcript:      body.Transcript,
			AISummary:       body.AISummary,
			Chapters:        body.Chapters,
			RequiredRoles:   body.RequiredRoles,
			DurationSeconds: body.DurationSeconds,
			Tags:            body.Tags,
			IsPublished:     body.IsPublished,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, adminView(video))
	}
}

func AdminVideoUpdate(svc VideoAdmin, logg *logger.Logger) http.HandlerFunc {
	return adminVideoHandler(svc, logg, func(r *http.Request, caller users.Caller, id uuid.UUID) (*models.Video, error) {
		var body videoPatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Update(r.Context(), caller, id, videos.Patch{
			Title:           body.Title,
			Description:     body.Description,
			MuxAssetID:      body.MuxAssetID,
			MuxPlaybackID:   body.MuxPlaybackID,
			ThumbnailURL:    body.ThumbnailURL,
			Transcript:      body.Transcript,
			AISummary:       body.AISummary,
			Chapters:        body.Chapters,
			DurationSeconds: body.DurationSeconds,
			Tags:            body.Tags,
		})
	})
}

func AdminVideoPublish(svc VideoAdmin, logg *logger.Logger) http.HandlerFunc {
	return adminVideoHandler(svc, logg, func(r *http.Request, caller users.Caller, id uuid.UUID) (*models.Video, error) {
		var body publishRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.SetPublished(r.Context(), caller, id, *body.Published)
	})
}

// AdminVideoRoles replaces the gating roles; an empty list makes the video public.
func AdminVideoRoles(svc VideoAdmin, logg *logger.Logger) http.HandlerFunc {
	return adminVideoHandler(svc, logg, func(r *http.Request, caller users.Caller, id uuid.UUID) (*models.Video, error) {
		var body rolesRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.SetRequiredRoles(r.Context(), caller, id, body.Roles)
	})
}

func AdminVideoDelete(svc VideoAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "video service unavailable"))
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), middleware.CallerFromContext(r.Context()), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func adminVideoHandler(svc VideoAdmin, logg *logger.Logger, fn func(*http.Request, users.Caller, uuid.UUID) (*models.Video, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "video service unavailable"))
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		video, err := fn(r, middleware.CallerFromContext(r.Context()), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, adminView(video))
	}
}
