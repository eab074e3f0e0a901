package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	day                        = 24 * time.Hour
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository publishedOutboxPruner
	// DLQ is optional; without it dead letters are kept forever.
	DLQ           deadLetterPruner
	RetentionDays int
	DLQDays       int
}

type publishedOutboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes published outbox rows and old dead letters.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:    p.Logger,
		outbox:  p.Repository,
		dlq:     p.DLQ,
		keep:    daysOr(p.RetentionDays, defaultOutboxRetentionDays),
		keepDLQ: daysOr(p.DLQDays, defaultDLQRetentionDays),
		clock:   time.Now,
	}, nil
}

func daysOr(days, fallback int) time.Duration {
	if days <= 0 {
		days = fallback
	}
	return time.Duration(days) * day
}

type outboxRetentionJob struct {
	logg    *logger.Logger
	outbox  publishedOutboxPruner
	dlq     deadLetterPruner
	keep    time.Duration
	keepDLQ time.Duration
	clock   func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.clock().UTC()
	fields := map[string]any{}
	var errs error

	cutoff := now.Add(-j.keep)
	if n, err := j.outbox.DeletePublishedBefore(ctx, cutoff); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune outbox: %w", err))
	} else {
		fields["outbox_deleted"] = n
		fields["outbox_cutoff"] = cutoff
	}
	if j.dlq != nil {
		dlqCutoff := now.Add(-j.keepDLQ)
		if n, err := j.dlq.DeleteFailedBefore(ctx, dlqCutoff); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune dlq: %w", err))
		} else {
			fields["dlq_deleted"] = n
			fields["dlq_cutoff"] = dlqCutoff
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention pass complete")
	return errs
}
