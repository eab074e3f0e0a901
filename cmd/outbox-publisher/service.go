package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	// idle backoff after a failed batch (db unreachable, lock timeout)
	maxIdleBackoff = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error, nextAttemptAt time.Time) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Broker        outbox.Broker
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
}

// Service drains outbox_events to the configured broker. Each pass claims a
// batch with SKIP LOCKED inside one transaction, so several publishers can run
// side by side without sending a row twice.
type Service struct {
	logg       *logger.Logger
	db         dbClient
	repo       outboxRepository
	broker     outbox.Broker
	brokerName string
	registry   registryResolver
	dlq        dlqRepository
	metrics    *metrics.OutboxMetrics

	batchSize   int
	maxAttempts int
	poll        time.Duration
	retry       retryPolicy
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("broker is required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}
	cfg := p.Config.Outbox
	svc := &Service{
		logg:        p.Logger,
		db:          p.DB,
		repo:        p.Repository,
		broker:      p.Broker,
		brokerName:  cfg.BrokerName(),
		registry:    p.Registry,
		dlq:         p.DLQRepository,
		metrics:     p.Metrics,
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		poll:        time.Duration(positiveOr(cfg.PollIntervalMS, int(defaultPoll/time.Millisecond))) * time.Millisecond,
		retry:       defaultRetryPolicy,
		now:         time.Now,
	}
	return svc, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run pings its dependencies, then loops until ctx is canceled. A full batch
// is followed immediately by the next one; an empty batch waits one poll
// interval and a failed batch backs off up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.broker.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping: %w", s.brokerName, err)
	}

	wait := s.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case claimed:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := sleepCtx(ctx, s.retry.jitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch reports whether any row was claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		claimed = true
		s.metrics.Batch()
		for _, row := range rows {
			if err := s.handle(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// handle publishes one row and records the outcome on it. Only bookkeeping
// failures are returned; broker failures become retries or DLQ entries.
func (s *Service) handle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return s.deadLetter(ctx, tx, row, "", enums.OutboxDLQReasonNonRetryable, err)
	}
	topic := resolved.Descriptor.Topic
	logCtx := s.logg.WithFields(ctx, rowFields(row, resolved.Envelope, topic))

	err = s.publish(ctx, row, resolved)
	if err == nil {
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.metrics.Event(string(row.EventType), metrics.OutboxPublished)
		s.logg.Info(logCtx, "outbox.published")
		return nil
	}

	var permanent registry.NonRetryableError
	if errors.As(err, &permanent) {
		return s.deadLetter(logCtx, tx, row, topic, enums.OutboxDLQReasonNonRetryable, err)
	}
	attempt := row.AttemptCount + 1
	if attempt >= s.maxAttempts {
		return s.deadLetter(logCtx, tx, row, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, err))
	}

	retryAt := s.now().UTC().Add(s.retry.jitter(s.retry.delay(attempt)))
	if err := s.repo.MarkFailedTx(tx, row.ID, err, retryAt); err != nil {
		return fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	s.metrics.Event(string(row.EventType), metrics.OutboxRetry)
	s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
		"attempt":         attempt,
		"next_attempt_at": retryAt.Format(time.RFC3339),
		"error":           err.Error(),
	}), "outbox.publish_retry")
	return nil
}

func (s *Service) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	if resolved.Descriptor.Topic == "" {
		return registry.NewNonRetryableError(fmt.Errorf("no topic configured for %s", row.EventType))
	}
	aggregateID := row.AggregateID.String()
	msg := outbox.Message{
		Topic: resolved.Descriptor.Topic,
		Key:   aggregateID,
		Data:  row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   aggregateID,
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	start := time.Now()
	err := s.broker.Publish(pubCtx, msg)
	s.metrics.PublishLatency(s.brokerName, time.Since(start))
	return err
}

// deadLetter copies the row into outbox_dlq and stamps it terminal in the same
// transaction, so it is never claimed again.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, row.ID, cause); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	s.metrics.Event(string(row.EventType), metrics.OutboxDeadLettered)
	fields := map[string]any{"error_reason": reason, "error": msg}
	if topic != "" {
		fields["topic"] = topic
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.dead_lettered")
	return nil
}

func rowFields(row models.OutboxEvent, env outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
		"topic":          topic,
	}
	if env.EventID != "" {
		fields["event_id"] = env.EventID
	}
	return fields
}

// retryPolicy spaces out publish attempts for one row: base doubles per
// attempt up to ceiling, plus up to spread of random jitter.
type retryPolicy struct {
	base    time.Duration
	ceiling time.Duration
	spread  time.Duration
}

var defaultRetryPolicy = retryPolicy{base: time.Second, ceiling: 5 * time.Minute, spread: 250 * time.Millisecond}

func (p retryPolicy) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.base
	}
	d := p.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.ceiling {
			return p.ceiling
		}
	}
	return d
}

func (p retryPolicy) jitter(d time.Duration) time.Duration {
	if d <= 0 || p.spread <= 0 {
		return d
	}
	return d + rand.N(p.spread)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
