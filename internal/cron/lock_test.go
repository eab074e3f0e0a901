package cron

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	mu     sync.Mutex
	owners map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{owners: map[string]string{}}
}

func (m *memoryLockStore) AcquireLock(_ context.Context, name, owner string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.owners[name]; held {
		return false, nil
	}
	m.owners[name] = owner
	return true, nil
}

func (m *memoryLockStore) ReleaseLock(_ context.Context, name, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[name] != owner {
		return false, nil
	}
	delete(m.owners, name)
	return true, nil
}

func TestRedisLockIsPerJob(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "cron:prod", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron:prod", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx, "expire-reservations")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx, "expire-reservations")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = second.Acquire(ctx, "reconcile-payments")
	require.NoError(t, err)
	require.True(t, ok, "a different job must not be blocked")

	// releasing a job this worker never won leaves the holder in place
	require.NoError(t, second.Release(ctx, "expire-reservations"))
	require.Contains(t, store.owners, "cron:prod:expire-reservations")

	require.NoError(t, first.Release(ctx, "expire-reservations"))
	ok, err = second.Acquire(ctx, "expire-reservations")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "cron:prod", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx, "outbox-retention")
	require.NoError(t, err)
	require.True(t, ok)

	// the TTL lapsed and another worker now holds it
	store.owners["cron:prod:outbox-retention"] = "other:1"
	require.NoError(t, lock.Release(ctx, "outbox-retention"))
	require.Equal(t, "other:1", store.owners["cron:prod:outbox-retention"])
}

func TestRedisLockOwnerNamesInstance(t *testing.T) {
	t.Setenv("KEYSHOP_INSTANCE_ID", "cron-b")
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "cron:dev", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background(), "reconcile-payments")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(store.owners["cron:dev:reconcile-payments"], "cron-b:"))
}
