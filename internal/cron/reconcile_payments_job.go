package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/keyshop-backend/internal/payments"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

// ReconcilePaymentsJobParams configure the payment feed poller.
type ReconcilePaymentsJobParams struct {
	Logger   *logger.Logger
	Payments pendingReconciler
}

type pendingReconciler interface {
	ReconcilePending(ctx context.Context) (payments.ReconcileSummary, error)
}

// NewReconcilePaymentsJob builds the job that matches pending orders against the payment feed.
func NewReconcilePaymentsJob(params ReconcilePaymentsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &reconcilePaymentsJob{
		logg:     params.Logger,
		payments: params.Payments,
	}, nil
}

type reconcilePaymentsJob struct {
	logg     *logger.Logger
	payments pendingReconciler
}

func (j *reconcilePaymentsJob) Name() string { return "reconcile-payments" }

func (j *reconcilePaymentsJob) Run(ctx context.Context) error {
	summary, err := j.payments.ReconcilePending(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": summary.Candidates,
		"finalized":  summary.Finalized,
		"noop":       summary.Noop,
		"unmatched":  summary.Unmatched,
		"failed":     summary.Failed,
	})
	if err != nil {
		return fmt.Errorf("reconcile pending orders: %w", err)
	}
	j.logg.Info(logCtx, "payment reconciliation complete")
	return nil
}
