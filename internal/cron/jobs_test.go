package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type pagedUsers struct {
	all   []models.User
	calls int
}

func (p *pagedUsers) ListLinked(_ context.Context, after uuid.UUID, limit int) ([]models.User, error) {
	p.calls++
	start := 0
	if after != uuid.Nil {
		for i, u := range p.all {
			if u.ID == after {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(p.all) {
		end = len(p.all)
	}
	return p.all[start:end], nil
}

type scriptedSyncer struct {
	errs    map[string]error
	callers []users.Caller
	seen    []string
}

func (s *scriptedSyncer) SyncMemberRoles(_ context.Context, caller users.Caller, subject string) (*models.User, error) {
	s.callers = append(s.callers, caller)
	s.seen = append(s.seen, subject)
	if err := s.errs[subject]; err != nil {
		return nil, err
	}
	return &models.User{}, nil
}

func linkedUsers(n int) []models.User {
	out := make([]models.User, n)
	for i := range out {
		subject := "user_" + string(rune('a'+i))
		out[i] = models.User{ID: uuid.New(), ExternalSubject: &subject}
	}
	return out
}

func TestRoleReconcilePagesThroughLinkedUsers(t *testing.T) {
	lister := &pagedUsers{all: linkedUsers(5)}
	syncer := &scriptedSyncer{errs: map[string]error{
		"user_b": pkgerrors.New(pkgerrors.CodeTimeout, "discord timed out"),
		"user_c": pkgerrors.New(pkgerrors.CodeStateConflict, "discord account not linked"),
		"user_d": errors.New("boom"),
	}}
	job, err := NewRoleReconcileJob(RoleReconcileJobParams{Logger: logger.Nop(), Users: lister, Syncer: syncer, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, "discord-role-reconcile", job.Name())

	err = job.Run(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2, "state conflicts are skipped, other failures aggregate")
	require.Equal(t, []string{"user_a", "user_b", "user_c", "user_d", "user_e"}, syncer.seen)
	require.Equal(t, 3, lister.calls)
	require.True(t, syncer.callers[0].Privileged())
}

func TestRoleReconcileStopsAfterRepeatedFailures(t *testing.T) {
	all := linkedUsers(maxConsecutiveFailures + 5)
	errs := map[string]error{}
	for _, u := range all {
		errs[u.Subject()] = pkgerrors.New(pkgerrors.CodeDependency, "breaker open")
	}
	syncer := &scriptedSyncer{errs: errs}
	job, err := NewRoleReconcileJob(RoleReconcileJobParams{Logger: logger.Nop(), Users: &pagedUsers{all: all}, Syncer: syncer})
	require.NoError(t, err)

	require.Error(t, job.Run(context.Background()))
	require.Len(t, syncer.seen, maxConsecutiveFailures)
}

type fakePruner struct {
	cutoff time.Time
	batch  int
	err    error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time, batch int) (int64, error) {
	f.cutoff, f.batch = cutoff, batch
	return 3, f.err
}

func TestLedgerRetentionUsesWindow(t *testing.T) {
	pruner := &fakePruner{}
	job, err := NewLedgerRetentionJob(LedgerRetentionJobParams{Logger: logger.Nop(), Ledger: pruner})
	require.NoError(t, err)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	job.(*ledgerRetentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-defaultLedgerRetention), pruner.cutoff)
	require.Equal(t, defaultLedgerBatch, pruner.batch)

	pruner.err = errors.New("db down")
	require.Error(t, job.Run(context.Background()))
}

func TestJobConstructorsValidate(t *testing.T) {
	_, err := NewRoleReconcileJob(RoleReconcileJobParams{Logger: logger.Nop()})
	require.Error(t, err)
	_, err = NewLedgerRetentionJob(LedgerRetentionJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}
