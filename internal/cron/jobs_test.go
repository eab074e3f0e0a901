package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/keyshop-backend/internal/payments"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

type fakeReaper struct {
	expired     int
	released    int64
	orphaned    int64
	expireErr   error
	orphanErr   error
	orphanCalls int
}

func (f *fakeReaper) ExpireOverdue(context.Context) (int, int64, error) {
	return f.expired, f.released, f.expireErr
}

func (f *fakeReaper) ReleaseOrphaned(context.Context) (int64, error) {
	f.orphanCalls++
	return f.orphaned, f.orphanErr
}

type fakeReconciler struct {
	summary payments.ReconcileSummary
	err     error
	calls   int
}

func (f *fakeReconciler) ReconcilePending(context.Context) (payments.ReconcileSummary, error) {
	f.calls++
	return f.summary, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}

func TestExpireReservationsJobRunsBothSweeps(t *testing.T) {
	reaper := &fakeReaper{expired: 2, released: 5, orphaned: 1}
	job, err := NewExpireReservationsJob(ExpireReservationsJobParams{Logger: testLogger(), Orders: reaper})
	require.NoError(t, err)
	require.Equal(t, "expire-reservations", job.Name())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, reaper.orphanCalls)
}

func TestExpireReservationsJobSweepsOrphansAfterExpiryFailure(t *testing.T) {
	reaper := &fakeReaper{
		expireErr: errors.New("order 1 failed"),
		orphanErr: errors.New("sweep failed"),
	}
	job, err := NewExpireReservationsJob(ExpireReservationsJobParams{Logger: testLogger(), Orders: reaper})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, reaper.orphanCalls)
	require.Contains(t, err.Error(), "order 1 failed")
	require.Contains(t, err.Error(), "sweep failed")
}

func TestExpireReservationsJobRequiresDeps(t *testing.T) {
	_, err := NewExpireReservationsJob(ExpireReservationsJobParams{Logger: testLogger()})
	require.Error(t, err)
	_, err = NewExpireReservationsJob(ExpireReservationsJobParams{Orders: &fakeReaper{}})
	require.Error(t, err)
}

func TestReconcilePaymentsJob(t *testing.T) {
	rec := &fakeReconciler{summary: payments.ReconcileSummary{Candidates: 3, Finalized: 1, Unmatched: 2}}
	job, err := NewReconcilePaymentsJob(ReconcilePaymentsJobParams{Logger: testLogger(), Payments: rec})
	require.NoError(t, err)
	require.Equal(t, "reconcile-payments", job.Name())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, rec.calls)
}

func TestReconcilePaymentsJobPropagatesFeedFailure(t *testing.T) {
	feedErr := errors.New("feed down")
	rec := &fakeReconciler{err: feedErr}
	job, err := NewReconcilePaymentsJob(ReconcilePaymentsJobParams{Logger: testLogger(), Payments: rec})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.ErrorIs(t, err, feedErr)
}
