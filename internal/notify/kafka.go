package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Source   string
}

// Kafka publishes notifications as JSON records keyed by booking ID, so all
// changes to one booking land on the same partition in order.
type Kafka struct {
	client *kgo.Client
	topic  string
	source string
}

// NewKafka creates a producer client. Brokers are contacted lazily.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "booking-events"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "room-booking"
	}
	if cfg.Source == "" {
		cfg.Source = cfg.ClientID
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: cfg.Topic, source: cfg.Source}, nil
}

// Publish produces n synchronously.
func (k *Kafka) Publish(ctx context.Context, n Notification) error {
	record, err := buildRecord(k.topic, k.source, n)
	if err != nil {
		return err
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", n.Type, err)
	}
	return nil
}

// Close flushes and closes the client.
func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}

func buildRecord(topic, source string, n Notification) (*kgo.Record, error) {
	value, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(n.BookingID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(n.Type)},
			{Key: "event_id", Value: []byte(n.ID)},
			{Key: "source", Value: []byte(source)},
			{Key: "content_type", Value: []byte("application/json")},
		},
		Timestamp: n.OccurredAt,
	}, nil
}
