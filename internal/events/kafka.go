package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaEmitter
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes events as JSON to a Kafka topic, keyed by organization id.
type KafkaEmitter struct {
	writer MessageWriter
}

// NewKafkaEmitter creates an emitter for the given brokers and topic.
// Returns nil when brokers or topic are empty. Call Close when shutting down.
func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaEmitter{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// NewKafkaEmitterWithWriter wraps an existing writer
func NewKafkaEmitterWithWriter(w MessageWriter) *KafkaEmitter {
	return &KafkaEmitter{writer: w}
}

// Emit writes the event with a short timeout so a slow broker does not stall the watch loop.
func (k *KafkaEmitter) Emit(ctx context.Context, event ComplianceEvent) error {
	if k == nil || k.writer == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.OrganizationID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka emit: %w", err)
	}
	return nil
}

// Close closes the writer. Safe to call on a nil emitter.
func (k *KafkaEmitter) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
