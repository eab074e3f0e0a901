package outbox

import "context"

// Message is a broker-neutral outbound event.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Broker publishes outbox messages. Publish returns only after the broker acknowledged the write.
type Broker interface {
	Publish(ctx context.Context, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}
