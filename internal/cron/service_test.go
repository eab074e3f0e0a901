package cron

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
)

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func newFakeLock(held ...string) *fakeLock {
	l := &fakeLock{held: map[string]bool{}}
	for _, name := range held {
		l.held[name] = true
	}
	return l
}

func (f *fakeLock) Acquire(_ context.Context, job string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[job] {
		return false, nil
	}
	f.held[job] = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, job string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, job)
	f.released = append(f.released, job)
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunOnceRunsEveryJobEvenAfterFailure(t *testing.T) {
	ok := &testJob{name: "expire-reservations"}
	bad := &testJob{name: "reconcile-payments", err: errors.New("feed down")}
	registry := NewRegistry()
	require.NoError(t, registry.Register(bad, time.Minute))
	require.NoError(t, registry.Register(ok, time.Minute))
	lock := newFakeLock()

	svc, err := NewService(ServiceParams{Logger: quietLogger(), Registry: registry, Lock: lock})
	require.NoError(t, err)

	err = svc.RunOnce(context.Background())
	require.ErrorContains(t, err, "reconcile-payments")
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, bad.runs)
	require.ElementsMatch(t, []string{"expire-reservations", "reconcile-payments"}, lock.released)
	require.Empty(t, lock.held)
}

func TestLockedJobIsSkippedOthersRun(t *testing.T) {
	held := &testJob{name: "reconcile-payments"}
	free := &testJob{name: "expire-reservations"}
	registry := NewRegistry()
	require.NoError(t, registry.Register(held, time.Minute))
	require.NoError(t, registry.Register(free, time.Minute))
	reg := prometheus.NewRegistry()

	svc, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: registry,
		Lock:     newFakeLock("reconcile-payments"),
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	require.NoError(t, svc.RunOnce(context.Background()))
	require.Zero(t, held.runs)
	require.Equal(t, 1, free.runs)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "keyshop_cron_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["job"] == "reconcile-payments" && labels["outcome"] == "skipped" {
				found = true
			}
		}
	}
	require.True(t, found, "skipped run not counted")
}

func TestRunDueFollowsSchedule(t *testing.T) {
	fast := &testJob{name: "reconcile-payments"}
	slow := &testJob{name: "outbox-retention"}
	registry := NewRegistry()
	require.NoError(t, registry.Register(fast, time.Minute))
	require.NoError(t, registry.Register(slow, 24*time.Hour))

	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: registry,
		Lock:     newFakeLock(),
		Now:      func() time.Time { return clock },
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc.runDue(ctx)
		clock = clock.Add(time.Minute)
	}
	require.Equal(t, 5, fast.runs)
	require.Equal(t, 1, slow.runs)
}

func TestTickDefaultsToShortestInterval(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&testJob{name: "a"}, 5*time.Second))
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Registry: registry, Lock: newFakeLock()})
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, svc.tick)

	svc, err = NewService(ServiceParams{Logger: quietLogger(), Registry: NewRegistry(), Lock: newFakeLock()})
	require.NoError(t, err)
	require.Equal(t, defaultTick, svc.tick)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Registry: NewRegistry(), Lock: newFakeLock()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: quietLogger(), Registry: NewRegistry()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: quietLogger(), Lock: newFakeLock()})
	require.Error(t, err)
}
