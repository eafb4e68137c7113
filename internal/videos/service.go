// Package videos serves the lesson catalog and its admin management.
package videos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/entitlement"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ServiceParams struct {
	Repo   Repository
	Audit  audit.Recorder
	Logger *logger.Logger
}

type Service struct {
	repo  Repository
	audit audit.Recorder
	logg  *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("videos repo is required")
	}
	if params.Audit == nil {
		params.Audit = audit.Nop{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{repo: params.Repo, audit: params.Audit, logg: params.Logger}, nil
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

// Page is one page of catalog entries projected for the viewer.
type Page struct {
	Videos     []entitlement.VideoView `json:"videos"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

// List returns the catalog. Non-admins only see published videos; gated
// ones come back locked.
func (s *Service) List(ctx context.Context, viewer entitlement.Viewer, filter ListFilter) (*Page, error) {
	filter.PublishedOnly = filter.PublishedOnly || !viewer.IsAdmin

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list videos")
	}
	rows, next := pagination.Trim(rows, filter.Limit, func(v models.Video) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	page := &Page{Videos: make([]entitlement.VideoView, 0, len(rows)), NextCursor: next}
	for i := range rows {
		page.Videos = append(page.Videos, entitlement.View(viewer, &rows[i]))
	}
	return page, nil
}

// Get returns one video. Unpublished videos are NotFound for non-admins.
func (s *Service) Get(ctx context.Context, viewer entitlement.Viewer, id uuid.UUID) (*entitlement.VideoView, error) {
	video, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entitlement.EnsureListed(viewer, video); err != nil {
		return nil, err
	}
	view := entitlement.View(viewer, video)
	return &view, nil
}

// Playback is what a player needs to stream an entitled video.
type Playback struct {
	VideoID       uuid.UUID `json:"video_id"`
	Title         string    `json:"title"`
	MuxPlaybackID string    `json:"mux_playback_id"`
}

// Playback returns stream identifiers only when the viewer is entitled.
func (s *Service) Playback(ctx context.Context, viewer entitlement.Viewer, id uuid.UUID) (*Playback, error) {
	video, err := s.Visible(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if video.MuxPlaybackID == nil || *video.MuxPlaybackID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "video is not ready for playback")
	}
	return &Playback{VideoID: video.ID, Title: video.Title, MuxPlaybackID: *video.MuxPlaybackID}, nil
}

// Visible loads a video the viewer may watch, NotFound otherwise.
func (s *Service) Visible(ctx context.Context, viewer entitlement.Viewer, id uuid.UUID) (*models.Video, error) {
	video, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entitlement.EnsureVisible(viewer, video); err != nil {
		return nil, err
	}
	return video, nil
}

// Input is the full set of admin-editable fields.
type Input struct {
	Title           string
	Description     *string
	MuxAssetID      *string
	MuxPlaybackID   *string
	ThumbnailURL    *string
	Transcript      *string
	AISummary       *string
	Chapters        []dbtypes.Chapter
	RequiredRoles   []string
	DurationSeconds *int
	Tags            []string
	IsPublished     bool
}

// Patch carries partial admin edits; nil fields are unchanged.
type Patch struct {
	Title           *string
	Description     *string
	MuxAssetID      *string
	MuxPlaybackID   *string
	ThumbnailURL    *string
	Transcript      *string
	AISummary       *string
	Chapters        *[]dbtypes.Chapter
	DurationSeconds *int
	Tags            *[]string
}

func (s *Service) Create(ctx context.Context, caller users.Caller, input Input) (*models.Video, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if err := validateDuration(input.DurationSeconds); err != nil {
		return nil, err
	}
	video := &models.Video{
		Title:           title,
		Description:     input.Description,
		MuxAssetID:      input.MuxAssetID,
		MuxPlaybackID:   input.MuxPlaybackID,
		ThumbnailURL:    input.ThumbnailURL,
		Transcript:      input.Transcript,
		AISummary:       input.AISummary,
		Chapters:        dbtypes.Chapters(input.Chapters).Sorted(),
		RequiredRoles:   dbtypes.Normalize(input.RequiredRoles),
		DurationSeconds: input.DurationSeconds,
		Tags:            dbtypes.Normalize(input.Tags),
		IsPublished:     input.IsPublished,
		UploadedBy:      caller.ActorID(),
		Source:          enums.VideoSourceManual,
	}
	if input.MuxAssetID != nil {
		video.Source = enums.VideoSourceUpload
	}
	if err := s.repo.Create(ctx, video); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create video")
	}
	s.record(ctx, caller, audit.ActionVideoCreate, video.ID, title)
	return video, nil
}

func (s *Service) Update(ctx context.Context, caller users.Caller, id uuid.UUID, patch Patch) (*models.Video, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	video, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		video.Title = title
	}
	if err := validateDuration(patch.DurationSeconds); err != nil {
		return nil, err
	}
	assign(&video.Description, patch.Description)
	assign(&video.MuxAssetID, patch.MuxAssetID)
	assign(&video.MuxPlaybackID, patch.MuxPlaybackID)
	assign(&video.ThumbnailURL, patch.ThumbnailURL)
	assign(&video.Transcript, patch.Transcript)
	assign(&video.AISummary, patch.AISummary)
	if patch.DurationSeconds != nil {
		video.DurationSeconds = patch.DurationSeconds
	}
	if patch.Chapters != nil {
		video.Chapters = dbtypes.Chapters(*patch.Chapters).Sorted()
	}
	if patch.Tags != nil {
		video.Tags = dbtypes.Normalize(*patch.Tags)
	}
	if err := s.repo.Save(ctx, video); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update video")
	}
	s.record(ctx, caller, audit.ActionVideoUpdate, video.ID, "")
	return video, nil
}

func (s *Service) SetPublished(ctx context.Context, caller users.Caller, id uuid.UUID, published bool) (*models.Video, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	video, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if video.IsPublished == published {
		return video, nil
	}
	video.IsPublished = published
	if err := s.repo.Save(ctx, video); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "publish video")
	}
	s.record(ctx, caller, audit.ActionVideoPublish, video.ID, fmt.Sprintf("published=%t", published))
	return video, nil
}

// SetRequiredRoles replaces the gating roles. An empty list makes the video public.
func (s *Service) SetRequiredRoles(ctx context.Context, caller users.Caller, id uuid.UUID, roles []string) (*models.Video, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	video, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	video.RequiredRoles = dbtypes.Normalize(roles)
	if err := s.repo.Save(ctx, video); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set required roles")
	}
	s.record(ctx, caller, audit.ActionVideoRoles, video.ID, strings.Join(video.RequiredRoles, ","))
	return video, nil
}

func (s *Service) Delete(ctx context.Context, caller users.Caller, id uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete video")
	}
	s.record(ctx, caller, audit.ActionVideoDelete, id, "")
	return nil
}

// Recording is an externally captured meeting recording.
type Recording struct {
	Source          enums.VideoSource
	Ref             string
	Title           string
	DownloadURL     string
	DurationSeconds *int
}

// IngestDraft creates an unpublished video for a recording unless one with
// the same source reference exists. It reports whether a row was created.
func (s *Service) IngestDraft(ctx context.Context, rec Recording) (*models.Video, bool, error) {
	ref := strings.TrimSpace(rec.Ref)
	if ref == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "recording reference is required")
	}
	existing, err := s.repo.FindBySource(ctx, rec.Source, ref)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup recording")
	}
	if existing != nil {
		return existing, false, nil
	}

	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = "Untitled recording"
	}
	video := &models.Video{
		Title:           title,
		IsPublished:     false,
		DurationSeconds: rec.DurationSeconds,
		Source:          rec.Source,
		SourceRef:       &ref,
	}
	if rec.DownloadURL != "" {
		u := rec.DownloadURL
		video.SourceURL = &u
	}
	if err := s.repo.Create(ctx, video); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "recording already ingested")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create draft video")
	}
	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionVideoIngest,
		TargetType: audit.TargetVideo,
		TargetID:   video.ID.String(),
		Detail:     string(rec.Source) + ":" + ref,
	})
	return video, true, nil
}

// FindByID returns the raw video for operator tooling.
func (s *Service) FindByID(ctx context.Context, caller users.Caller, id uuid.UUID) (*models.Video, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	video, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load video")
	}
	if video == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
	}
	return video, nil
}

func (s *Service) record(ctx context.Context, caller users.Caller, action string, id uuid.UUID, detail string) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:    caller.ActorID(),
		Action:     action,
		TargetType: audit.TargetVideo,
		TargetID:   id.String(),
		Detail:     detail,
	})
}

func requireAdmin(caller users.Caller) error {
	if caller.Kind == users.CallerSystem {
		return nil
	}
	if caller.Kind == users.CallerUser && caller.IsAdmin {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "admin required")
}

func validateDuration(d *int) error {
	if d != nil && *d < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "duration must be non-negative")
	}
	return nil
}

func assign(dst **string, src *string) {
	if src == nil {
		return
	}
	value := strings.TrimSpace(*src)
	if value == "" {
		*dst = nil
		return
	}
	*dst = &value
}
