package progress

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/lessongate-backend/pkg/db"
	"github.com/angelmondragon/lessongate-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/entitlement"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type gate struct{ locked map[uuid.UUID]bool }

func (g gate) Visible(_ context.Context, _ entitlement.Viewer, id uuid.UUID) (*models.Video, error) {
	if g.locked[id] {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
	}
	return &models.Video{ID: id}, nil
}

func newService(t *testing.T, g gate, now time.Time) (*Service, Repository) {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{Repo: repo, Videos: g, TxRunner: db.NewFromConn(conn)})
	require.NoError(t, err)
	svc.now = func() time.Time { return now }
	return svc, repo
}

func member() entitlement.Viewer {
	id := uuid.New()
	return entitlement.Viewer{Authenticated: true, UserID: &id}
}

func TestRecordUpsertsPositionAndAccumulatesDailyTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	svc, repo := newService(t, gate{}, now)
	viewer := member()
	videoID := uuid.New()
	ctx := context.Background()

	first, err := svc.Record(ctx, viewer, videoID, Update{PositionSeconds: 90, WatchedSeconds: 90, Completed: true})
	require.NoError(t, err)
	require.Equal(t, 90, first.PositionSeconds)
	require.True(t, first.Completed)

	second, err := svc.Record(ctx, viewer, videoID, Update{PositionSeconds: 30, WatchedSeconds: 60})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 30, second.PositionSeconds)
	require.True(t, second.Completed, "completion is sticky")

	logs, err := repo.RecentLogs(ctx, *viewer.UserID, "2026-03-01")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "2026-03-10", logs[0].LogDate)
	require.EqualValues(t, 150, logs[0].SecondsWatched)
}

func TestRecordRequiresAccessAndIdentity(t *testing.T) {
	locked := uuid.New()
	svc, repo := newService(t, gate{locked: map[uuid.UUID]bool{locked: true}}, time.Now())
	viewer := member()

	_, err := svc.Record(context.Background(), viewer, locked, Update{WatchedSeconds: 60})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.Record(context.Background(), entitlement.Viewer{Authenticated: true}, uuid.New(), Update{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	_, err = svc.Record(context.Background(), viewer, uuid.New(), Update{PositionSeconds: -1})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	logs, err := repo.RecentLogs(context.Background(), *viewer.UserID, "2000-01-01")
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestGetReturnsNilWithoutProgress(t *testing.T) {
	svc, _ := newService(t, gate{}, time.Now())
	row, err := svc.Get(context.Background(), member(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestStreakCountsConsecutiveDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, repo := newService(t, gate{}, now)
	viewer := member()
	ctx := context.Background()

	// 9th and 8th count, 7th is under a minute and breaks the streak.
	require.NoError(t, repo.AddWatchTime(ctx, *viewer.UserID, "2026-03-09", 600))
	require.NoError(t, repo.AddWatchTime(ctx, *viewer.UserID, "2026-03-08", 120))
	require.NoError(t, repo.AddWatchTime(ctx, *viewer.UserID, "2026-03-07", 30))
	require.NoError(t, repo.AddWatchTime(ctx, *viewer.UserID, "2026-03-06", 300))

	streak, err := svc.Streak(ctx, viewer)
	require.NoError(t, err)
	require.Equal(t, 2, streak.CurrentDays)
	require.EqualValues(t, 0, streak.TodayMinutes)
	require.EqualValues(t, 17, streak.WeekMinutes)

	_, err = svc.Record(ctx, viewer, uuid.New(), Update{WatchedSeconds: 180})
	require.NoError(t, err)
	streak, err = svc.Streak(ctx, viewer)
	require.NoError(t, err)
	require.Equal(t, 3, streak.CurrentDays)
	require.EqualValues(t, 3, streak.TodayMinutes)
}
