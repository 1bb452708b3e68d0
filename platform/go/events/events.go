// Package events publishes domain events for downstream consumers
// (notification service, warehouse sync).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/infofluencer/infofluencer/platform/go/requesttrace"
)

// Event types.
const (
	TypeProviderConnected    = "provider.connected"
	TypeProviderDisconnected = "provider.disconnected"
	TypeReportMaterialized   = "report.materialized"
	TypeTenantDeleted        = "tenant.deleted"
)

// Event is the JSON envelope written to the bus.
type Event struct {
	Type       string                 `json:"type"`
	TenantID   string                 `json:"tenant_id"`
	Provider   string                 `json:"provider,omitempty"`
	ReportType string                 `json:"report_type,omitempty"`
	Rows       int                    `json:"rows,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Actor      requesttrace.AuditInfo `json:"actor"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to Kafka, partitioned by tenant so each
// tenant's events stay ordered.
type KafkaPublisher struct {
	writer      messageWriter
	topicPrefix string
}

func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topicPrefix: topicPrefix,
	}, nil
}

// Topic maps an event type to its topic name.
func (p *KafkaPublisher) Topic(eventType string) string {
	return p.topicPrefix + eventType
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.Topic(event.Type),
		Key:   []byte(event.TenantID),
		Value: payload,
		Time:  event.OccurredAt,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*KafkaPublisher)(nil)
)
