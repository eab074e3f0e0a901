package enums

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateNotification OutboxAggregateType = "notification"
)

var aggregateTypes = newSet("aggregate type", AggregateOrder, AggregateNotification)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType names a domain event written to the outbox. The value is
// also the event_type attribute consumers route on.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderFulfilled        OutboxEventType = "order_fulfilled"
	EventOrderExpired          OutboxEventType = "order_expired"
	EventOrderCancelled        OutboxEventType = "order_cancelled"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var outboxEventTypes = newSet("event type",
	EventOrderCreated,
	EventOrderFulfilled,
	EventOrderExpired,
	EventOrderCancelled,
	EventNotificationRequested,
)

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse(value)
}

// OutboxDLQErrorReason says why a row was moved to the dead-letter table.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = newSet("dlq reason", OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable)

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
