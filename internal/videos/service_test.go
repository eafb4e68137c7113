package videos

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/entitlement"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memRecorder struct{ actions []string }

func (m *memRecorder) Record(_ context.Context, e audit.Entry) {
	m.actions = append(m.actions, e.Action)
}

func strPtr(v string) *string { return &v }

func adminCaller() users.Caller {
	id := uuid.New()
	return users.Caller{Kind: users.CallerUser, UserID: &id, IsAdmin: true}
}

func newService(t *testing.T) (*Service, Repository, *memRecorder) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	rec := &memRecorder{}
	svc, err := NewService(ServiceParams{Repo: repo, Audit: rec})
	require.NoError(t, err)
	return svc, repo, rec
}

func seed(t *testing.T, repo Repository, title string, published bool, roles []string, created time.Time) *models.Video {
	t.Helper()
	video := &models.Video{
		Title:         title,
		IsPublished:   published,
		RequiredRoles: dbtypes.StringArray(roles),
		MuxPlaybackID: strPtr("play_" + title),
		MuxAssetID:    strPtr("asset_" + title),
		Transcript:    strPtr("secret words"),
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	require.NoError(t, repo.Create(context.Background(), video))
	return video
}

func TestListHidesDraftsAndLocksGatedVideos(t *testing.T) {
	svc, repo, _ := newService(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, repo, "public", true, nil, base)
	seed(t, repo, "gated", true, []string{"sub"}, base.Add(time.Hour))
	seed(t, repo, "draft", false, nil, base.Add(2*time.Hour))

	page, err := svc.List(context.Background(), entitlement.Anonymous(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Videos, 2)
	require.Equal(t, "gated", page.Videos[0].Title)
	require.True(t, page.Videos[0].IsLocked)
	require.Nil(t, page.Videos[0].MuxPlaybackID)
	require.Nil(t, page.Videos[0].Transcript)
	require.False(t, page.Videos[1].IsLocked)
	require.NotNil(t, page.Videos[1].MuxPlaybackID)

	adminPage, err := svc.List(context.Background(), entitlement.Viewer{Authenticated: true, IsAdmin: true}, ListFilter{})
	require.NoError(t, err)
	require.Len(t, adminPage.Videos, 3)
}

func TestListPaginates(t *testing.T) {
	svc, repo, _ := newService(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seed(t, repo, uuid.NewString(), true, nil, base.Add(time.Duration(i)*time.Minute))
	}

	page, err := svc.List(context.Background(), entitlement.Anonymous(), ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Videos, 2)
	require.NotEmpty(t, page.NextCursor)

	cursor, err := pagination.ParseCursor(page.NextCursor)
	require.NoError(t, err)
	next, err := svc.List(context.Background(), entitlement.Anonymous(), ListFilter{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, next.Videos, 1)
	require.Empty(t, next.NextCursor)
}

func TestGetAndPlaybackSoftDeny(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	draft := seed(t, repo, "draft", false, nil, now)
	gated := seed(t, repo, "gated", true, []string{"sub"}, now)

	_, err := svc.Get(ctx, entitlement.Anonymous(), draft.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	view, err := svc.Get(ctx, entitlement.Anonymous(), gated.ID)
	require.NoError(t, err)
	require.True(t, view.IsLocked)

	_, err = svc.Playback(ctx, entitlement.Anonymous(), gated.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "gated playback must look missing")

	member := entitlement.Viewer{Authenticated: true, Roles: []string{"sub"}}
	playback, err := svc.Playback(ctx, member, gated.ID)
	require.NoError(t, err)
	require.Equal(t, "play_gated", playback.MuxPlaybackID)

	_, err = svc.Get(ctx, entitlement.Anonymous(), uuid.New())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestPlaybackRequiresPlaybackID(t *testing.T) {
	svc, repo, _ := newService(t)
	video := &models.Video{Title: "processing", IsPublished: true}
	require.NoError(t, repo.Create(context.Background(), video))

	_, err := svc.Playback(context.Background(), entitlement.Anonymous(), video.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}

func TestAdminLifecycleIsAudited(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	admin := adminCaller()

	_, err := svc.Create(ctx, users.Caller{Kind: users.CallerUser}, Input{Title: "x"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	video, err := svc.Create(ctx, admin, Input{
		Title:    " Intro ",
		Chapters: []dbtypes.Chapter{{StartSeconds: 60, Title: "B"}, {StartSeconds: 0, Title: "A"}},
		Tags:     []string{"go", "go", " "},
	})
	require.NoError(t, err)
	require.Equal(t, "Intro", video.Title)
	require.False(t, video.IsPublished)
	require.Equal(t, "A", video.Chapters[0].Title)
	require.Equal(t, []string{"go"}, []string(video.Tags))
	require.Equal(t, admin.UserID, video.UploadedBy)

	updated, err := svc.Update(ctx, admin, video.ID, Patch{Title: strPtr("Intro to Go"), AISummary: strPtr("summary")})
	require.NoError(t, err)
	require.Equal(t, "Intro to Go", updated.Title)
	require.Equal(t, "summary", *updated.AISummary)

	_, err = svc.Update(ctx, admin, video.ID, Patch{Title: strPtr("  ")})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	published, err := svc.SetPublished(ctx, admin, video.ID, true)
	require.NoError(t, err)
	require.True(t, published.IsPublished)

	gated, err := svc.SetRequiredRoles(ctx, admin, video.ID, []string{"sub", "sub"})
	require.NoError(t, err)
	require.Equal(t, []string{"sub"}, []string(gated.RequiredRoles))

	require.NoError(t, svc.Delete(ctx, admin, video.ID))
	require.True(t, pkgerrors.Is(svc.Delete(ctx, admin, video.ID), pkgerrors.CodeNotFound))

	require.Equal(t, []string{
		audit.ActionVideoCreate,
		audit.ActionVideoUpdate,
		audit.ActionVideoPublish,
		audit.ActionVideoRoles,
		audit.ActionVideoDelete,
	}, rec.actions)
}

func TestIngestDraftIsIdempotentPerRecording(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	duration := 3600
	recording := Recording{
		Source:          enums.VideoSourceZoom,
		Ref:             "rec-uuid-1",
		Title:           "Weekly call",
		DownloadURL:     "https://us02web.zoom.us/rec/download/abc",
		DurationSeconds: &duration,
	}

	video, created, err := svc.IngestDraft(ctx, recording)
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, video.IsPublished)
	require.Equal(t, enums.VideoSourceZoom, video.Source)

	again, created, err := svc.IngestDraft(ctx, recording)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, video.ID, again.ID)
	require.Equal(t, []string{audit.ActionVideoIngest}, rec.actions)
}

// racingRepo misses on lookup as if a concurrent delivery inserted the row
// between the check and the insert.
type racingRepo struct{ Repository }

func (racingRepo) FindBySource(context.Context, enums.VideoSource, string) (*models.Video, error) {
	return nil, nil
}

func TestIngestDraftRaceSurfacesConflict(t *testing.T) {
	_, repo, _ := newService(t)
	svc, err := NewService(ServiceParams{Repo: racingRepo{repo}, Audit: &memRecorder{}})
	require.NoError(t, err)
	ctx := context.Background()
	recording := Recording{Source: enums.VideoSourceZoom, Ref: "rec-uuid-2", Title: "Call"}

	_, created, err := svc.IngestDraft(ctx, recording)
	require.NoError(t, err)
	require.True(t, created)

	_, _, err = svc.IngestDraft(ctx, recording)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)
}
