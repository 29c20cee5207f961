package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
	"github.com/turtacn/PriorArt-Intelligence/pkg/types/common"
)

const (
	TopicAnalysisRequested = "analysis.requested"
	TopicAnalysisCompleted = "analysis.completed"
	TopicAnalysisFailed    = "analysis.failed"
	TopicAlertNotification = "alert.notification"
	TopicDeadLetter        = "dead_letter.analysis"
)

// Event types carried in EventEnvelope.EventType.
const (
	EventAnalysisRequested = "AnalysisRequested"
	EventAnalysisCompleted = "AnalysisCompleted"
	EventAnalysisFailed    = "AnalysisFailed"
	EventAlertNotification = "AlertNotificationCreated"
)

const schemaVersion = "v1"

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AnalysisRequestedPayload asks a worker to process a pending job.
type AnalysisRequestedPayload struct {
	JobID       string    `json:"job_id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// AnalysisFinishedPayload reports a terminal job.
type AnalysisFinishedPayload struct {
	JobID            string    `json:"job_id"`
	OwnerID          string    `json:"owner_id,omitempty"`
	Status           string    `json:"status"`
	Cause            string    `json:"cause,omitempty"`
	OpportunityScore float64   `json:"opportunity_score,omitempty"`
	PatentCount      int       `json:"patent_count"`
	PublicationCount int       `json:"publication_count"`
	FinishedAt       time.Time `json:"finished_at"`
}

// NotificationPayload announces a new alert match.
type NotificationPayload struct {
	NotificationID     string    `json:"notification_id"`
	AlertID            string    `json:"alert_id"`
	OwnerID            string    `json:"owner_id"`
	DocumentType       string    `json:"document_type"`
	DocumentIdentifier string    `json:"document_identifier"`
	DocumentTitle      string    `json:"document_title"`
	SimilarityScore    float64   `json:"similarity_score"`
	Reason             string    `json:"reason"`
	CreatedAt          time.Time `json:"created_at"`
}

func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target. An absent payload is an
// error, since every event type carries one.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "event has no payload").WithDetail(e.EventID)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}

// ToMessage renders the envelope as a record keyed by key.
func (e *EventEnvelope) ToMessage(topic, key string) (*common.ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &common.ProducerMessage{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"event_id":       e.EventID,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(msg *common.Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// MessagePublisher is the subset of Producer used by EventPublisher.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *common.ProducerMessage) error
}

// EventPublisher wraps payloads in an EventEnvelope before publishing.
type EventPublisher struct {
	producer MessagePublisher
	source   string
}

func NewEventPublisher(p MessagePublisher, source string) *EventPublisher {
	return &EventPublisher{producer: p, source: source}
}

func (p *EventPublisher) Publish(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, p.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic, key)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

// TopicConfig describes a topic to provision.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager provisions topics.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "failed to dial kafka")
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 || cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions and replication factor must be > 0").WithDetail(cfg.Name)
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs)})
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeMessagingError, "failed to create topic").WithDetail(cfg.Name)
	}
	m.logger.Info("topic created", logging.String("topic", cfg.Name))
	return nil
}

func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

// EnsureTopics creates every missing topic, stopping at the first failure.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

// DefaultTopics returns the topics the services publish to, sized for
// replication factor rf.
func DefaultTopics(rf int) []TopicConfig {
	const day = int64(24 * time.Hour / time.Millisecond)
	if rf <= 0 {
		rf = 1
	}
	return []TopicConfig{
		{Name: TopicAnalysisRequested, NumPartitions: 6, ReplicationFactor: rf, RetentionMs: 3 * day},
		{Name: TopicAnalysisCompleted, NumPartitions: 3, ReplicationFactor: rf, RetentionMs: 7 * day},
		{Name: TopicAnalysisFailed, NumPartitions: 3, ReplicationFactor: rf, RetentionMs: 7 * day},
		{Name: TopicAlertNotification, NumPartitions: 6, ReplicationFactor: rf, RetentionMs: 7 * day},
		{Name: TopicDeadLetter, NumPartitions: 1, ReplicationFactor: rf, RetentionMs: 30 * day},
	}
}
