package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemLockStore() *memLockStore {
	return &memLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memLockStore) LockKey(name string) string { return "lg:lock:" + name }

func TestRedisLockIsExclusiveUntilReleased(t *testing.T) {
	store := newMemLockStore()
	first, err := NewRedisLock(store, "cron", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "lg:lock:cron", first.Key())

	ctx := context.Background()
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultLockTTL, store.ttls[first.Key()])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// Releasing a lock never acquired is a no-op.
	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, first.Key())

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockLeavesForeignLease(t *testing.T) {
	store := newMemLockStore()
	lock, err := NewRedisLock(store, "cron", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// Lease expired and another worker took it.
	store.values[lock.Key()] = "someone-else"
	require.NoError(t, lock.Release(context.Background()))
	require.Equal(t, "someone-else", store.values[lock.Key()])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "cron", 0)
	require.Error(t, err)
	_, err = NewRedisLock(newMemLockStore(), "", 0)
	require.Error(t, err)
}
