package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic is the Kafka topic audit events are published to.
const DefaultTopic = "grc.audit.events"

// KafkaSink publishes audit events to Kafka. Kafka is the source of truth for
// the audit trail; consumers materialize events into their own stores.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// kafkaPayload is the JSON structure published to the topic. Field names are
// part of the consumer contract; do not rename casually.
type kafkaPayload struct {
	Category   string `json:"category"`
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action"`
	Actor      string `json:"actor,omitempty"`
	TenantCode string `json:"tenant_code,omitempty"`
	Subject    string `json:"subject,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	OldStatus  string `json:"old_status,omitempty"`
	NewStatus  string `json:"new_status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// NewKafkaSink connects to the given brokers and ensures the audit topic
// exists before the first publish.
func NewKafkaSink(ctx context.Context, brokers []string, topic string) (*KafkaSink, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	return &KafkaSink{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	topics, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}
	if topics.Has(topic) {
		return nil
	}
	_, err = adm.CreateTopic(ctx, -1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create audit topic %q: %w", topic, err)
	}
	return nil
}

// Append publishes one event, keyed by subject so all events for a given code
// or evidence record land in one partition in order.
func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload := kafkaPayload{
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Action:     event.Action,
		Actor:      event.Actor,
		TenantCode: event.TenantCode,
		Subject:    event.Subject,
		EntityType: event.EntityType,
		OldStatus:  event.OldStatus,
		NewStatus:  event.NewStatus,
		Reason:     event.Reason,
		RequestID:  event.RequestID,
	}
	if event.EntityID != [16]byte{} {
		payload.EntityID = event.EntityID.String()
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes pending records and releases the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
