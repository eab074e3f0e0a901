package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// Actor kinds recorded on envelopes.
const (
	ActorSystem   = "system"
	ActorCustomer = "customer"
	ActorOperator = "operator"
)

// SystemActor tags events produced by detectors and scheduled jobs.
func SystemActor(component string) *ActorRef {
	return &ActorRef{Kind: ActorSystem, ID: component}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
