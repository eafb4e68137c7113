package discord

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/config"
	"github.com/angelmondragon/lessongate-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	roles    map[string][]string
	err      error
	calls    int
	added    []string
	removed  []string
	writeErr error
}

func (s *stubSource) MemberRoles(_ context.Context, _, userID string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	roles, ok := s.roles[userID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	return roles, nil
}

func (s *stubSource) AddRole(_ context.Context, _, userID, roleID string) error {
	s.added = append(s.added, userID+":"+roleID)
	return s.writeErr
}

func (s *stubSource) RemoveRole(_ context.Context, _, userID, roleID string) error {
	s.removed = append(s.removed, userID+":"+roleID)
	return s.writeErr
}

func newTestService(t *testing.T, source *stubSource, cache *RoleCache) (*Service, *users.Service) {
	t.Helper()
	userSvc, err := users.NewService(users.ServiceParams{Repo: users.NewRepository(dbtest.Open(t))})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Client:           source,
		Users:            userSvc,
		Cache:            cache,
		GuildID:          "G1",
		SubscriberRoleID: "sub",
	})
	require.NoError(t, err)
	return svc, userSvc
}

func TestSyncMemberRolesReplacesRoleSet(t *testing.T) {
	source := &stubSource{roles: map[string][]string{"D1": {"sub", "mod"}}}
	svc, userSvc := newTestService(t, source, nil)
	ctx := context.Background()
	user, err := userSvc.UpsertByExternalSubject(ctx, "user_1", users.ProfileFields{Email: "a@x.io", DiscordID: "D1"}, false)
	require.NoError(t, err)

	synced, err := svc.SyncMemberRoles(ctx, users.UserCaller("user_1", user), "user_1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sub", "mod"}, []string(synced.DiscordRoles))

	_, err = svc.SyncMemberRoles(ctx, users.UserCaller("user_2", nil), "user_1")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
}

func TestSyncMemberRolesClearsRolesWhenMemberLeft(t *testing.T) {
	source := &stubSource{roles: map[string][]string{}}
	svc, userSvc := newTestService(t, source, nil)
	ctx := context.Background()
	_, err := userSvc.UpsertByExternalSubject(ctx, "user_1", users.ProfileFields{Email: "a@x.io", DiscordID: "D1"}, false)
	require.NoError(t, err)
	_, err = userSvc.SetDiscordRoles(ctx, users.SystemCaller("test"), "user_1", []string{"sub"})
	require.NoError(t, err)

	synced, err := svc.SyncMemberRoles(ctx, users.InternalCaller(), "user_1")
	require.NoError(t, err)
	require.Empty(t, synced.DiscordRoles)
}

func TestSyncMemberRolesRequiresLinkedAccount(t *testing.T) {
	svc, userSvc := newTestService(t, &stubSource{}, nil)
	ctx := context.Background()
	_, err := userSvc.UpsertByExternalSubject(ctx, "user_1", users.ProfileFields{Email: "a@x.io"}, false)
	require.NoError(t, err)

	_, err = svc.SyncMemberRoles(ctx, users.InternalCaller(), "user_1")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	_, err = svc.SyncMemberRoles(ctx, users.InternalCaller(), "user_missing")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestSyncMemberRolesSurfacesUpstreamFailure(t *testing.T) {
	source := &stubSource{err: pkgerrors.New(pkgerrors.CodeTimeout, "discord timed out")}
	svc, userSvc := newTestService(t, source, nil)
	ctx := context.Background()
	_, err := userSvc.UpsertByExternalSubject(ctx, "user_1", users.ProfileFields{Email: "a@x.io", DiscordID: "D1"}, false)
	require.NoError(t, err)
	_, err = userSvc.SetDiscordRoles(ctx, users.SystemCaller("test"), "user_1", []string{"sub"})
	require.NoError(t, err)

	_, err = svc.SyncMemberRoles(ctx, users.InternalCaller(), "user_1")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeTimeout))

	stored, err := userSvc.FindBySubject(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, []string{"sub"}, []string(stored.DiscordRoles), "failed sync must not clear roles")
}

func TestSyncMemberRolesUsesCache(t *testing.T) {
	cache, err := NewRoleCache(config.RoleCacheConfig{})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	source := &stubSource{roles: map[string][]string{"D1": {"sub"}}}
	svc, userSvc := newTestService(t, source, cache)
	ctx := context.Background()
	_, err = userSvc.UpsertByExternalSubject(ctx, "user_1", users.ProfileFields{Email: "a@x.io", DiscordID: "D1"}, false)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.SyncMemberRoles(ctx, users.InternalCaller(), "user_1")
		require.NoError(t, err)
	}
	require.Equal(t, 1, source.calls)

	require.NoError(t, svc.GrantSubscriberRole(ctx, "D1"))
	_, ok := cache.Get("D1")
	require.False(t, ok, "grant must invalidate cached roles")
}

func TestSubscriberRoleGrantAndRevoke(t *testing.T) {
	source := &stubSource{}
	svc, _ := newTestService(t, source, nil)
	ctx := context.Background()

	require.NoError(t, svc.GrantSubscriberRole(ctx, "D1"))
	require.Equal(t, []string{"D1:sub"}, source.added)

	source.writeErr = pkgerrors.New(pkgerrors.CodeNotFound, "unknown member")
	require.NoError(t, svc.RevokeSubscriberRole(ctx, "D1"))
	require.Equal(t, []string{"D1:sub"}, source.removed)

	source.writeErr = pkgerrors.New(pkgerrors.CodeDependency, "discord down")
	require.Error(t, svc.GrantSubscriberRole(ctx, "D1"))

	svc.subscriberID = ""
	source.added = nil
	require.NoError(t, svc.GrantSubscriberRole(ctx, "D1"))
	require.Empty(t, source.added)
}

func TestRoleCacheNilIsSafe(t *testing.T) {
	var cache *RoleCache
	cache.Set("D1", []string{"a"})
	_, ok := cache.Get("D1")
	require.False(t, ok)
	cache.Invalidate("D1")
	cache.Close()
}

func TestRoleCacheHoldsConfiguredEntryCount(t *testing.T) {
	cache, err := NewRoleCache(config.RoleCacheConfig{MaxEntries: 1000})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	for i := 0; i < 200; i++ {
		cache.Set(fmt.Sprintf("D%d", i), []string{"member"})
	}
	retained := 0
	for i := 0; i < 200; i++ {
		if _, ok := cache.Get(fmt.Sprintf("D%d", i)); ok {
			retained++
		}
	}
	require.Equal(t, 200, retained)
}
