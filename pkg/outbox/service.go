package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/keyshop-backend/pkg/db"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

var errTxRequired = errors.New("outbox: transaction required")

// DomainEvent is an event before it is wrapped in an envelope and stored.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	// Version defaults to 1.
	Version    int
	OccurredAt time.Time
}

// Service writes events into outbox_events inside the caller's transaction,
// so an event exists exactly when the state change that caused it commits.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stores each event as its own row. Any failure aborts the batch and the
// caller is expected to roll tx back.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, events ...DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	for _, ev := range events {
		row, envelope, err := s.toRow(ev)
		if err != nil {
			return fmt.Errorf("outbox %s: %w", ev.EventType, err)
		}
		if err := s.repo.Insert(tx, row); err != nil {
			return err
		}
		s.logQueued(ctx, ev, envelope.EventID)
	}
	return nil
}

// EmitOnce skips the event when a row with the same type and aggregate is
// already stored, including one inserted concurrently.
func (s *Service) EmitOnce(ctx context.Context, tx *gorm.DB, ev DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	exists, err := s.repo.ExistsTx(tx, ev.EventType, ev.AggregateType, ev.AggregateID)
	if err != nil || exists {
		return err
	}
	err = s.Emit(ctx, tx, ev)
	if dbpkg.IsUniqueViolation(err, "") {
		return nil
	}
	return err
}

func (s *Service) toRow(ev DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("marshal data: %w", err)
	}
	envelope := PayloadEnvelope{
		Version:    max(ev.Version, 1),
		EventID:    uuid.NewString(),
		OccurredAt: ev.OccurredAt,
		Actor:      ev.Actor,
		Data:       data,
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = s.now()
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return models.OutboxEvent{
		EventType:     ev.EventType,
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		Payload:       json.RawMessage(body),
	}, envelope, nil
}

func (s *Service) logQueued(ctx context.Context, ev DomainEvent, eventID string) {
	if s.logg == nil {
		return
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":       eventID,
		"event_type":     ev.EventType,
		"aggregate_type": ev.AggregateType,
		"aggregate_id":   ev.AggregateID.String(),
	}), "outbox.queued")
}
