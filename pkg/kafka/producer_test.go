package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, nil)
	require.Error(t, err)
}

func TestPublishMapsMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := &recordingWriter{}
	p := &Producer{w: w, now: func() time.Time { return now }}

	err := p.Publish(context.Background(), outbox.Message{
		Topic: "ks-order-events",
		Key:   "order-1",
		Data:  []byte(`{"version":1}`),
		Attributes: map[string]string{
			"event_type": "order_fulfilled",
			"aggregate":  "order",
		},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "ks-order-events", msg.Topic)
	require.Equal(t, []byte("order-1"), msg.Key)
	require.Equal(t, now, msg.Time)
	require.Len(t, msg.Headers, 2)
	require.Equal(t, "aggregate", msg.Headers[0].Key)
	require.Equal(t, "event_type", msg.Headers[1].Key)
}

func TestPublishRequiresTopic(t *testing.T) {
	p := &Producer{w: &recordingWriter{}, now: time.Now}
	require.Error(t, p.Publish(context.Background(), outbox.Message{Data: []byte("{}")}))
}

func TestPublishPropagatesWriterError(t *testing.T) {
	writeErr := errors.New("leader not available")
	p := &Producer{w: &recordingWriter{err: writeErr}, now: time.Now}
	err := p.Publish(context.Background(), outbox.Message{Topic: "t", Data: []byte("{}")})
	require.ErrorIs(t, err, writeErr)
}

func TestCloseClosesWriter(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{w: w}
	require.NoError(t, p.Close())
	require.True(t, w.closed)
}
