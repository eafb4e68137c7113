// Package entitlement decides whether a viewer may watch a video and redacts
// what a viewer without access may see. It performs no I/O.
package entitlement

import (
	"time"

	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/google/uuid"
)

// Viewer is the identity an access decision is made for.
type Viewer struct {
	Authenticated bool
	UserID        *uuid.UUID
	IsAdmin       bool
	Roles         []string
}

// Anonymous returns a viewer with no identity.
func Anonymous() Viewer {
	return Viewer{}
}

// NewViewer builds a viewer from the caller's record. An authenticated caller
// without a synced record has no roles and no admin rights.
func NewViewer(authenticated bool, user *models.User) Viewer {
	if !authenticated {
		return Anonymous()
	}
	if user == nil {
		return Viewer{Authenticated: true}
	}
	id := user.ID
	return Viewer{
		Authenticated: true,
		UserID:        &id,
		IsAdmin:       user.IsAdmin,
		Roles:         append([]string(nil), user.DiscordRoles...),
	}
}

// CanAccess reports whether the viewer may see the full video.
func CanAccess(viewer Viewer, video *models.Video) bool {
	if video == nil {
		return false
	}
	if viewer.IsAdmin {
		return true
	}
	if !video.IsPublished {
		return false
	}
	if len(video.RequiredRoles) == 0 {
		return true
	}
	return video.RequiredRoles.Intersects(viewer.Roles)
}

// EnsureListed hides unpublished videos from non-admins. Role-gated videos
// stay listed and are redacted by Sanitize.
func EnsureListed(viewer Viewer, video *models.Video) error {
	if video == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
	}
	if viewer.IsAdmin || video.IsPublished {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
}

// EnsureVisible returns NotFound, never Forbidden, when the viewer cannot
// access the video so existence is not confirmed.
func EnsureVisible(viewer Viewer, video *models.Video) error {
	if !CanAccess(viewer, video) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
	}
	return nil
}

// VideoView is the client-facing representation of a video.
type VideoView struct {
	ID              uuid.UUID         `json:"id"`
	Title           string            `json:"title"`
	Description     *string           `json:"description,omitempty"`
	ThumbnailURL    *string           `json:"thumbnail_url,omitempty"`
	DurationSeconds *int              `json:"duration_seconds,omitempty"`
	Tags            []string          `json:"tags"`
	AISummary       *string           `json:"ai_summary,omitempty"`
	Chapters        []dbtypes.Chapter `json:"chapters"`
	IsPublished     bool              `json:"is_published"`
	IsLocked        bool              `json:"is_locked"`
	RequiredRoles   []string          `json:"required_roles"`
	Source          enums.VideoSource `json:"source"`
	CreatedAt       time.Time         `json:"created_at"`

	MuxAssetID    *string `json:"mux_asset_id,omitempty"`
	MuxPlaybackID *string `json:"mux_playback_id,omitempty"`
	Transcript    *string `json:"transcript,omitempty"`
}

// Sanitize projects the video for a viewer. Without access the playback and
// asset identifiers and the transcript are stripped and IsLocked is set.
func Sanitize(video *models.Video, hasAccess bool) VideoView {
	view := VideoView{
		ID:              video.ID,
		Title:           video.Title,
		Description:     video.Description,
		ThumbnailURL:    video.ThumbnailURL,
		DurationSeconds: video.DurationSeconds,
		Tags:            nonNil(video.Tags),
		AISummary:       video.AISummary,
		Chapters:        []dbtypes.Chapter(video.Chapters.Sorted()),
		IsPublished:     video.IsPublished,
		RequiredRoles:   nonNil(video.RequiredRoles),
		Source:          video.Source,
		CreatedAt:       video.CreatedAt,
	}
	if !hasAccess {
		view.IsLocked = true
		return view
	}
	view.MuxAssetID = video.MuxAssetID
	view.MuxPlaybackID = video.MuxPlaybackID
	view.Transcript = video.Transcript
	return view
}

// View applies CanAccess and Sanitize together.
func View(viewer Viewer, video *models.Video) VideoView {
	return Sanitize(video, CanAccess(viewer, video))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
