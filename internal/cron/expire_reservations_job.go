package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

// ExpireReservationsJobParams configure the reservation reaper.
type ExpireReservationsJobParams struct {
	Logger *logger.Logger
	Orders reservationReaper
}

type reservationReaper interface {
	ExpireOverdue(ctx context.Context) (expired int, released int64, err error)
	ReleaseOrphaned(ctx context.Context) (int64, error)
}

// NewExpireReservationsJob builds the job that expires overdue pending orders
// and sweeps units still reserved by dead orders.
func NewExpireReservationsJob(params ExpireReservationsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &expireReservationsJob{
		logg:   params.Logger,
		orders: params.Orders,
	}, nil
}

type expireReservationsJob struct {
	logg   *logger.Logger
	orders reservationReaper
}

func (j *expireReservationsJob) Name() string { return "expire-reservations" }

func (j *expireReservationsJob) Run(ctx context.Context) error {
	var errs error

	expired, released, err := j.orders.ExpireOverdue(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire overdue orders: %w", err))
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired":        expired,
		"units_released": released,
	})
	j.logg.Info(logCtx, "overdue order expiration complete")

	orphaned, err := j.orders.ReleaseOrphaned(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("release orphaned units: %w", err))
	}
	if orphaned > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "units_released", orphaned), "released units held by dead orders")
	}
	return errs
}
