package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lessongate-backend/api/middleware"
	"github.com/angelmondragon/lessongate-backend/internal/analytics"
	"github.com/angelmondragon/lessongate-backend/internal/billing"
	"github.com/angelmondragon/lessongate-backend/internal/progress"
	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/internal/videos"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/lessongate-backend/pkg/db/types"
	"github.com/angelmondragon/lessongate-backend/pkg/entitlement"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
)

func withUser(req *http.Request, user *models.User) *http.Request {
	return req.WithContext(middleware.WithCaller(req.Context(), users.UserCaller(user.Subject(), user), user))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func member(admin bool, roles ...string) *models.User {
	sub := "user_" + uuid.NewString()
	return &models.User{
		ID:                 uuid.New(),
		ExternalSubject:    &sub,
		Email:              "m@example.com",
		DiscordRoles:       dbtypes.StringArray(roles),
		SubscriptionStatus: enums.SubscriptionStatusActive,
		IsAdmin:            admin,
	}
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

type fakeCatalog struct {
	lastViewer entitlement.Viewer
	lastFilter videos.ListFilter
	err        error
}

func (f *fakeCatalog) List(_ context.Context, viewer entitlement.Viewer, filter videos.ListFilter) (*videos.Page, error) {
	f.lastViewer, f.lastFilter = viewer, filter
	return &videos.Page{Videos: []entitlement.VideoView{{Title: "Intro", IsLocked: true}}}, f.err
}

func (f *fakeCatalog) Get(_ context.Context, viewer entitlement.Viewer, id uuid.UUID) (*entitlement.VideoView, error) {
	f.lastViewer = viewer
	if f.err != nil {
		return nil, f.err
	}
	return &entitlement.VideoView{ID: id}, nil
}

func (f *fakeCatalog) Playback(_ context.Context, viewer entitlement.Viewer, id uuid.UUID) (*videos.Playback, error) {
	f.lastViewer = viewer
	if f.err != nil {
		return nil, f.err
	}
	return &videos.Playback{VideoID: id, MuxPlaybackID: "pb"}, nil
}

func TestVideoListPassesViewerAndQuery(t *testing.T) {
	catalog := &fakeCatalog{}
	user := member(false, "role-a")
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/videos?limit=5&q=%20intro%20", nil), user)
	rec := httptest.NewRecorder()
	VideoList(catalog, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, catalog.lastViewer.Authenticated)
	assert.Equal(t, []string{"role-a"}, catalog.lastViewer.Roles)
	assert.Equal(t, 5, catalog.lastFilter.Limit)
	assert.Equal(t, "intro", catalog.lastFilter.Search)

	var page videos.Page
	decodeData(t, rec, &page)
	require.Len(t, page.Videos, 1)
	assert.True(t, page.Videos[0].IsLocked)
}

func TestVideoListRejectsBadPaging(t *testing.T) {
	rec := httptest.NewRecorder()
	VideoList(&fakeCatalog{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	VideoList(&fakeCatalog{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos?cursor=not-base64!", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoPlaybackAnonymousAndNotFound(t *testing.T) {
	catalog := &fakeCatalog{err: pkgerrors.New(pkgerrors.CodeNotFound, "video not found")}
	id := uuid.New()
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/videos/"+id.String()+"/playback", nil), "id", id.String())
	rec := httptest.NewRecorder()
	VideoPlayback(catalog, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, catalog.lastViewer.Authenticated)

	req = withParam(httptest.NewRequest(http.MethodGet, "/api/v1/videos/nope", nil), "id", "nope")
	rec = httptest.NewRecorder()
	VideoGet(&fakeCatalog{}, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeProfiles struct{ update users.ProfileUpdate }

func (f *fakeProfiles) UpdateProfile(_ context.Context, caller users.Caller, update users.ProfileUpdate) (*models.User, error) {
	f.update = update
	return &models.User{ID: *caller.UserID, Name: *update.Name}, nil
}

func TestMeUpdateRejectsServerOwnedFields(t *testing.T) {
	user := member(false)
	svc := &fakeProfiles{}

	body := bytes.NewBufferString(`{"name":"Ada","discord_roles":["admin"]}`)
	rec := httptest.NewRecorder()
	MeUpdate(svc, nil).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPatch, "/api/v1/me", body), user))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = bytes.NewBufferString(`{"name":"  Ada  "}`)
	rec = httptest.NewRecorder()
	MeUpdate(svc, nil).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPatch, "/api/v1/me", body), user))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada", *svc.update.Name)
}

func TestMeGet(t *testing.T) {
	user := member(false, "r1")
	rec := httptest.NewRecorder()
	MeGet(nil).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), user))
	require.Equal(t, http.StatusOK, rec.Code)

	var view userView
	decodeData(t, rec, &view)
	assert.Equal(t, user.ID, view.ID)
	assert.Equal(t, []string{"r1"}, view.DiscordRoles)
	assert.False(t, view.HasBilling)

	rec = httptest.NewRecorder()
	MeGet(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeSyncer struct {
	caller  users.Caller
	subject string
}

func (f *fakeSyncer) SyncMemberRoles(_ context.Context, caller users.Caller, subject string) (*models.User, error) {
	f.caller, f.subject = caller, subject
	if subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject is required")
	}
	sub := subject
	return &models.User{ID: uuid.New(), ExternalSubject: &sub}, nil
}

func TestInternalSyncUsesInternalCaller(t *testing.T) {
	svc := &fakeSyncer{}
	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/users/user_9/discord-roles/sync", nil)
	req = withParam(req, "subject", "user_9")
	req = req.WithContext(middleware.WithCaller(req.Context(), users.InternalCaller(), nil))
	rec := httptest.NewRecorder()
	InternalSyncDiscordRoles(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, users.CallerInternal, svc.caller.Kind)
	assert.Equal(t, "user_9", svc.subject)
}

func TestMeDiscordSyncUsesOwnSubject(t *testing.T) {
	svc := &fakeSyncer{}
	user := member(false)
	rec := httptest.NewRecorder()
	MeDiscordSync(svc, nil).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/me/discord/sync", nil), user))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.Subject(), svc.subject)
	assert.Equal(t, users.CallerUser, svc.caller.Kind)
}

type fakeResolver struct{ users map[string]*models.User }

func (f fakeResolver) Resolve(_ context.Context, lookup users.Lookup) (*models.User, error) {
	return f.users[string(lookup.Kind)+"="+lookup.Value], nil
}

func TestInternalUserLookup(t *testing.T) {
	user := member(false)
	svc := fakeResolver{users: map[string]*models.User{"discord_id=42": user}}

	rec := httptest.NewRecorder()
	InternalUserLookup(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/internal/v1/users/lookup",
		bytes.NewBufferString(`{"kind":"discord_id","value":" 42 "}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var view userView
	decodeData(t, rec, &view)
	assert.Equal(t, user.ID, view.ID)

	rec = httptest.NewRecorder()
	InternalUserLookup(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/internal/v1/users/lookup",
		bytes.NewBufferString(`{"kind":"discord_id","value":"7"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	InternalUserLookup(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/internal/v1/users/lookup",
		bytes.NewBufferString(`{"kind":"email","value":"a@b.c"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeProgress struct {
	update progress.Update
}

func (f *fakeProgress) Record(_ context.Context, _ entitlement.Viewer, videoID uuid.UUID, update progress.Update) (*models.VideoProgress, error) {
	f.update = update
	return &models.VideoProgress{VideoID: videoID, PositionSeconds: update.PositionSeconds, LastWatchedAt: time.Now()}, nil
}

func (f *fakeProgress) Get(context.Context, entitlement.Viewer, uuid.UUID) (*models.VideoProgress, error) {
	return nil, nil
}

func (f *fakeProgress) Streak(context.Context, entitlement.Viewer) (*progress.Streak, error) {
	return &progress.Streak{CurrentDays: 3}, nil
}

func TestProgressHandlers(t *testing.T) {
	svc := &fakeProgress{}
	user := member(false)
	id := uuid.New()

	req := withParam(httptest.NewRequest(http.MethodPut, "/api/v1/progress/"+id.String(),
		bytes.NewBufferString(`{"position_seconds":120,"watched_seconds":30,"completed":true}`)), "videoId", id.String())
	rec := httptest.NewRecorder()
	ProgressPut(svc, nil).ServeHTTP(rec, withUser(req, user))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, progress.Update{PositionSeconds: 120, WatchedSeconds: 30, Completed: true}, svc.update)

	req = withParam(httptest.NewRequest(http.MethodPut, "/api/v1/progress/"+id.String(),
		bytes.NewBufferString(`{"position_seconds":-1}`)), "videoId", id.String())
	rec = httptest.NewRecorder()
	ProgressPut(svc, nil).ServeHTTP(rec, withUser(req, user))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = withParam(httptest.NewRequest(http.MethodGet, "/api/v1/progress/"+id.String(), nil), "videoId", id.String())
	rec = httptest.NewRecorder()
	ProgressGet(svc, nil).ServeHTTP(rec, withUser(req, user))
	require.Equal(t, http.StatusOK, rec.Code)
	var view progressView
	decodeData(t, rec, &view)
	assert.Equal(t, id, view.VideoID)
	assert.Zero(t, view.PositionSeconds)
	assert.Nil(t, view.LastWatchedAt)

	rec = httptest.NewRecorder()
	ProgressStreak(svc, nil).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/progress/streak", nil), user))
	require.Equal(t, http.StatusOK, rec.Code)
}

type fakeBilling struct{ user *models.User }

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, user *models.User) (*billing.Session, error) {
	f.user = user
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in required")
	}
	return &billing.Session{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (f *fakeBilling) CreatePortalSession(context.Context, *models.User) (*billing.Session, error) {
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no billing account")
}

func TestBillingHandlers(t *testing.T) {
	svc := &fakeBilling{}
	user := member(false)

	rec := httptest.NewRecorder()
	BillingCheckout(svc, nil).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", nil), user))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, user, svc.user)

	rec = httptest.NewRecorder()
	BillingPortal(svc, nil).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/billing/portal", nil), user))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type fakeDirectory struct{ filter users.ListFilter }

func (f *fakeDirectory) List(_ context.Context, _ users.Caller, filter users.ListFilter) (*users.ListResult, error) {
	f.filter = filter
	return &users.ListResult{Users: []models.User{*member(false)}, NextCursor: "next"}, nil
}

func TestAdminUsersFilters(t *testing.T) {
	svc := &fakeDirectory{}
	rec := httptest.NewRecorder()
	AdminUsers(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/users?status=past_due&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.Status)
	assert.Equal(t, enums.SubscriptionStatusPastDue, *svc.filter.Status)

	var page userPage
	decodeData(t, rec, &page)
	assert.Len(t, page.Users, 1)
	assert.Equal(t, "next", page.NextCursor)

	rec = httptest.NewRecorder()
	AdminUsers(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/users?status=gold", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	req, err := analyticsWindow(httptest.NewRequest(http.MethodGet, "/x?days=7", nil), now)
	require.NoError(t, err)
	assert.Equal(t, analytics.LastDays(7, now), req)

	req, err = analyticsWindow(httptest.NewRequest(http.MethodGet, "/x?start=2026-03-01&end=2026-03-05", nil), now)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Start.Day())
	assert.Equal(t, 5, req.End.Day())

	_, err = analyticsWindow(httptest.NewRequest(http.MethodGet, "/x?start=2026-03-01", nil), now)
	assert.Error(t, err)
}

type fakeVideoAdmin struct {
	VideoAdmin
	published *bool
}

func (f *fakeVideoAdmin) SetPublished(_ context.Context, caller users.Caller, id uuid.UUID, published bool) (*models.Video, error) {
	if !caller.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin required")
	}
	f.published = &published
	return &models.Video{ID: id, Title: "T", IsPublished: published}, nil
}

func TestAdminVideoPublish(t *testing.T) {
	svc := &fakeVideoAdmin{}
	id := uuid.New()
	admin := member(true)

	req := withParam(httptest.NewRequest(http.MethodPut, "/api/admin/v1/videos/"+id.String()+"/publish",
		bytes.NewBufferString(`{"published":true}`)), "id", id.String())
	rec := httptest.NewRecorder()
	AdminVideoPublish(svc, nil).ServeHTTP(rec, withUser(req, admin))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.published)
	assert.True(t, *svc.published)

	var view entitlement.VideoView
	decodeData(t, rec, &view)
	assert.True(t, view.IsPublished)
	assert.False(t, view.IsLocked)

	req = withParam(httptest.NewRequest(http.MethodPut, "/api/admin/v1/videos/"+id.String()+"/publish",
		bytes.NewBufferString(`{}`)), "id", id.String())
	rec = httptest.NewRecorder()
	AdminVideoPublish(svc, nil).ServeHTTP(rec, withUser(req, admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
