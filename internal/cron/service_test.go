package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"github.com/angelmondragon/lessongate-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("boom")
	}
	return t.err
}

func newCronService(t *testing.T, lock Lock, jobs ...Job) (*Service, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  m,
	})
	require.NoError(t, err)
	return svc, reg
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	panicking := &testJob{name: "panic", panic: true}
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	svc, _ := newCronService(t, lock, ok, failing, panicking, after)

	require.NoError(t, svc.RunOnce(context.Background()))
	for _, job := range []*testJob{ok, failing, panicking, after} {
		require.Equal(t, 1, job.runs, job.name)
	}
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.acquired)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "only"}
	svc, _ := newCronService(t, &fakeLock{acquired: true}, job)

	require.NoError(t, svc.RunOnce(context.Background()))
	require.Zero(t, job.runs)
}

func TestRunOnceSelectsNamedJobs(t *testing.T) {
	a := &testJob{name: "a"}
	b := &testJob{name: "b"}
	svc, _ := newCronService(t, &fakeLock{}, a, b)

	require.NoError(t, svc.RunOnce(context.Background(), "b"))
	require.Zero(t, a.runs)
	require.Equal(t, 1, b.runs)

	require.Error(t, svc.RunOnce(context.Background(), "missing"))
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
}

func TestRunOnceRecordsMetrics(t *testing.T) {
	svc, reg := newCronService(t, &fakeLock{}, &testJob{name: "ok"}, &testJob{name: "bad", err: errors.New("x")})
	require.NoError(t, svc.RunOnce(context.Background()))

	runs, err := testutil.GatherAndCount(reg, "lessongate_cron_job_runs_total")
	require.NoError(t, err)
	require.Equal(t, 2, runs)
	durations, err := testutil.GatherAndCount(reg, "lessongate_cron_job_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, durations)
	successes, err := testutil.GatherAndCount(reg, "lessongate_cron_job_last_success_timestamp_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, successes)
}
