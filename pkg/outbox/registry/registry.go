// Package registry maps outbox event types to their topic and payload schema,
// and decodes stored rows before the publisher sends them.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox/payloads"
)

// maxEnvelopeVersion is the newest envelope layout this build can read.
const maxEnvelopeVersion = 1

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	validate *validator.Validate
}

// NonRetryableError marks a row that can never be published as stored; the
// publisher dead-letters it instead of scheduling a retry.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// NewEventRegistry routes order lifecycle events to the orders topic and
// customer notifications to their own topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, errors.New("notification topic is required")
	}
	r := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	add(r, enums.EventOrderCreated, enums.AggregateOrder, cfg.OrdersTopic, payloads.OrderCreatedEvent{})
	add(r, enums.EventOrderFulfilled, enums.AggregateOrder, cfg.OrdersTopic, payloads.OrderFulfilledEvent{})
	add(r, enums.EventOrderExpired, enums.AggregateOrder, cfg.OrdersTopic, payloads.OrderExpiredEvent{})
	add(r, enums.EventOrderCancelled, enums.AggregateOrder, cfg.OrdersTopic, payloads.OrderCancelledEvent{})
	add(r, enums.EventNotificationRequested, enums.AggregateNotification, cfg.NotificationTopic, payloads.NotificationRequestedEvent{})
	return r, nil
}

// add registers T as the payload schema of eventType. The zero value only
// pins the type parameter.
func add[T any](r *EventRegistry, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, _ T) {
	r.entries[eventType] = EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(data json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, err
			}
			if err := r.validate.Struct(payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// Topics lists every distinct topic, sorted.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, 2)
	for _, desc := range r.entries {
		if !slices.Contains(topics, desc.Topic) {
			topics = append(topics, desc.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve decodes a stored row. Every failure is a NonRetryableError: a row
// that does not decode now will not decode on the next attempt either.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if envelope.Version > maxEnvelopeVersion {
		return nil, permanent("envelope version %d not supported", envelope.Version)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", row.EventType)
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, permanent("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
