// Package kafkasink streams audit events to a Kafka topic, keyed by artifact
// id so each artifact's events stay ordered within a partition.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"receiptvault/internal/platform/kafka"
	"receiptvault/internal/vault/models"
)

// DefaultTopic receives audit events when no topic is configured.
const DefaultTopic = "receiptvault.audit"

// Producer is the subset of the kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

type Sink struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{producer: producer, topic: topic}
}

func (s *Sink) Append(ctx context.Context, event models.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	msg := &kafka.Message{
		Topic: s.topic,
		Key:   []byte(event.ArtifactID),
		Value: value,
		Headers: map[string]string{
			"event_type": string(event.Type),
			"seq":        strconv.FormatInt(event.Seq, 10),
		},
	}
	if err := s.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("publish audit event %d: %w", event.Seq, err)
	}
	return nil
}
