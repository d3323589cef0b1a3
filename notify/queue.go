package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/pixima/avatar-backend/models"
)

// Queue publishes user notifications to the outbound topic. Delivery is
// fire-and-forget from the pipelines' perspective and at-least-once for
// consumers.
type Queue struct {
	publisher message.Publisher
	topic     string
}

// NewQueue wraps any watermill publisher. Tests pass a gochannel pub/sub.
func NewQueue(publisher message.Publisher, topic string) *Queue {
	return &Queue{publisher: publisher, topic: topic}
}

// NewKafkaQueue creates a queue backed by a Kafka topic.
func NewKafkaQueue(broker, topic string) (*Queue, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   []string{broker},
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	return NewQueue(publisher, topic), nil
}

// Send publishes one notification.
func (q *Queue) Send(_ context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := q.publisher.Publish(q.topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	log.Printf("Notification queued for user %s (%s)", n.UserID, n.MessageType)
	return nil
}

// Close releases the underlying publisher.
func (q *Queue) Close() error {
	return q.publisher.Close()
}
