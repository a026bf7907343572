// Package sync publishes membership events to the campus access-control
// directory. Publication is fire and forget: the API response never waits on
// the broker, and a failed publish is logged and counted, not retried, since
// the directory reconciles from the database on its own schedule.
package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/campusface/campusface/internal/telemetry"
)

// Event types carried on the membership topic
const (
	EventMemberAdded   = "member.added"
	EventPhotoUpdated  = "member.photo_updated"
	EventMemberUpdated = "member.updated"
)

// MemberSyncEvent is the JSON payload written to the membership topic.
// Keyed by organization so one hub's events stay ordered.
type MemberSyncEvent struct {
	EventType      string    `json:"event_type"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	MemberID       string    `json:"member_id,omitempty"`
	Role           string    `json:"role,omitempty"`
	Status         string    `json:"status,omitempty"`
	FaceImageID    string    `json:"face_image_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher is the interface services use to emit membership events
type Publisher interface {
	PublishMemberSync(ctx context.Context, event MemberSyncEvent) error
	Close() error
}

// Writer is the subset of kafka.Writer the publisher needs, kept narrow so
// tests can inject a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes membership events to a Kafka topic
type KafkaPublisher struct {
	writer Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher writing to the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return NewKafkaPublisherWithWriter(w, logger)
}

// NewKafkaPublisherWithWriter allows injecting a test writer
func NewKafkaPublisherWithWriter(w Writer, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

// PublishMemberSync marshals the event and writes it keyed by organization
func (p *KafkaPublisher) PublishMemberSync(ctx context.Context, event MemberSyncEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		telemetry.SyncEventsPublishedTotal.WithLabelValues("error").Inc()
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.OrganizationID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		telemetry.SyncEventsPublishedTotal.WithLabelValues("error").Inc()
		p.logger.Error("failed to publish member sync event",
			"event_type", event.EventType,
			"organization_id", event.OrganizationID,
			"error", err)
		return err
	}

	telemetry.SyncEventsPublishedTotal.WithLabelValues("ok").Inc()
	p.logger.Debug("published member sync event",
		"event_type", event.EventType,
		"organization_id", event.OrganizationID,
		"user_id", event.UserID)
	return nil
}

// Close closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops all events. Used when sync is disabled in config.
type NopPublisher struct{}

func (NopPublisher) PublishMemberSync(ctx context.Context, event MemberSyncEvent) error { return nil }
func (NopPublisher) Close() error                                                       { return nil }
