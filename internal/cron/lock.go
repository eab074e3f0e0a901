package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/pkg/instance"
)

const defaultLockTTL = 4 * time.Minute

// Lock grants one worker at a time the right to run a named job.
type Lock interface {
	Acquire(ctx context.Context, job string) (bool, error)
	Release(ctx context.Context, job string) error
}

type lockStore interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) (bool, error)
}

// RedisLock holds one Redis lock per job name under a shared prefix. The TTL
// bounds how long a crashed worker can block a job.
type RedisLock struct {
	store  lockStore
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	owners map[string]string
}

func NewRedisLock(store lockStore, prefix string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if prefix == "" {
		return nil, errors.New("lock prefix is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, prefix: prefix, ttl: ttl, owners: map[string]string{}}, nil
}

func (l *RedisLock) Acquire(ctx context.Context, job string) (bool, error) {
	owner := instance.ID() + ":" + uuid.NewString()
	ok, err := l.store.AcquireLock(ctx, l.name(job), owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", job, err)
	}
	if ok {
		l.mu.Lock()
		l.owners[job] = owner
		l.mu.Unlock()
	}
	return ok, nil
}

// Release is a no-op when this worker does not hold the lock, including when
// it expired mid-run and another worker took it.
func (l *RedisLock) Release(ctx context.Context, job string) error {
	l.mu.Lock()
	owner, held := l.owners[job]
	delete(l.owners, job)
	l.mu.Unlock()
	if !held {
		return nil
	}
	if _, err := l.store.ReleaseLock(ctx, l.name(job), owner); err != nil {
		return fmt.Errorf("release %s: %w", job, err)
	}
	return nil
}

func (l *RedisLock) name(job string) string {
	return l.prefix + ":" + job
}
