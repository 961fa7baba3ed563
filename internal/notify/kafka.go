package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
)

// MessageWriter is the subset of *kafka.Writer the channel needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes every domain event as JSON to one topic, keyed by
// issue id so events of an issue stay ordered within a partition.
type KafkaChannel struct {
	writer MessageWriter
	topic  string
}

// NewKafkaChannel builds a channel writing to topic on brokers.
func NewKafkaChannel(brokers []string, topic string, logger *zap.Logger) (*KafkaChannel, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}
	logger.Info("kafka notification channel created",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic))
	return NewKafkaChannelWithWriter(writer, topic), nil
}

// NewKafkaChannelWithWriter wraps an existing writer.
func NewKafkaChannelWithWriter(writer MessageWriter, topic string) *KafkaChannel {
	return &KafkaChannel{writer: writer, topic: topic}
}

func (k *KafkaChannel) Name() string { return "kafka" }

// Deliver writes event to the topic.
func (k *KafkaChannel) Deliver(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.IssueID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaChannel) Close() error {
	return k.writer.Close()
}
