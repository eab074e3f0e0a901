// Package kafka publishes outbox messages to Kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
)

const defaultWriteTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes synchronously so the outbox row is only marked published after the broker acks.
type Producer struct {
	w       messageWriter
	brokers []string
	now     func() time.Time
}

// NewProducer builds a producer. The writer carries no default topic; every message names its own.
func NewProducer(cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           defaultWriteTimeout,
		AllowAutoTopicCreation: false,
	}
	if logg != nil {
		logg.Info(logg.WithField(context.Background(), "brokers", brokers), "kafka producer initialized")
	}
	return &Producer{w: w, brokers: brokers, now: time.Now}, nil
}

// Publish writes one message keyed by msg.Key so events of an order stay ordered within a partition.
func (p *Producer) Publish(ctx context.Context, msg outbox.Message) error {
	if msg.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return p.w.WriteMessages(ctx, p.toKafkaMessage(msg))
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	var errs []error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("dial %s: %w", broker, err))
			continue
		}
		return conn.Close()
	}
	return errors.Join(errs...)
}

func (p *Producer) Close() error {
	return p.w.Close()
}

func (p *Producer) toKafkaMessage(msg outbox.Message) kafka.Message {
	keys := make([]string, 0, len(msg.Attributes))
	for k := range msg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(msg.Attributes[k])})
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
		Time:    p.now().UTC(),
	}
}
