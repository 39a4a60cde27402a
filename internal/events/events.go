// Package events carries sync requests and sync outcomes over Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"catalogsync/internal/logger"
	"catalogsync/internal/reconcile"
)

const (
	TypeSyncRequested = "sync.requested"
	TypeSyncCompleted = "sync.completed"
)

// SyncRequest asks a worker to run one operation for one project.
type SyncRequest struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	ProjectID   string              `json:"project_id"`
	Operation   reconcile.Operation `json:"operation"`
	RequestedBy string              `json:"requested_by"`
	Timestamp   time.Time           `json:"timestamp"`
}

// SyncEvent reports a finished run.
type SyncEvent struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	ProjectID  string              `json:"project_id"`
	Operation  reconcile.Operation `json:"operation"`
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	Result     interface{}         `json:"result,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Publisher emits sync requests and sync outcomes.
type Publisher interface {
	PublishSyncRequest(ctx context.Context, req *SyncRequest) error
	PublishSyncEvent(ctx context.Context, ev *SyncEvent) error
	Close() error
}

// KafkaPublisher writes both message kinds through one writer, routing by topic.
type KafkaPublisher struct {
	writer       *kafka.Writer
	requestTopic string
	eventTopic   string
	logger       *logger.Logger
}

func NewKafkaPublisher(brokers []string, requestTopic, eventTopic string, logger *logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{
		writer:       writer,
		requestTopic: requestTopic,
		eventTopic:   eventTopic,
		logger:       logger,
	}
}

func (p *KafkaPublisher) PublishSyncRequest(ctx context.Context, req *SyncRequest) error {
	msg, err := requestMessage(p.requestTopic, req)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish sync request for project %s: %v", req.ProjectID, err)
		return fmt.Errorf("publish sync request: %w", err)
	}
	p.logger.Debug("Published sync request %s (%s) for project %s", req.ID, req.Operation, req.ProjectID)
	return nil
}

func (p *KafkaPublisher) PublishSyncEvent(ctx context.Context, ev *SyncEvent) error {
	msg, err := eventMessage(p.eventTopic, ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish sync event for project %s: %v", ev.ProjectID, err)
		return fmt.Errorf("publish sync event: %w", err)
	}
	p.logger.Debug("Published sync event %s (%s) for project %s", ev.ID, ev.Operation, ev.ProjectID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewSyncRequest fills in the envelope fields of a request.
func NewSyncRequest(projectID string, op reconcile.Operation, requestedBy string) *SyncRequest {
	return &SyncRequest{
		ID:          uuid.New().String(),
		Type:        TypeSyncRequested,
		ProjectID:   projectID,
		Operation:   op,
		RequestedBy: requestedBy,
		Timestamp:   time.Now().UTC(),
	}
}

// DecodeSyncRequest parses and validates a request message body.
func DecodeSyncRequest(value []byte) (*SyncRequest, error) {
	var req SyncRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return nil, fmt.Errorf("decode sync request: %w", err)
	}
	if req.Type != "" && req.Type != TypeSyncRequested {
		return nil, fmt.Errorf("unexpected message type %q", req.Type)
	}
	if req.ProjectID == "" {
		return nil, errors.New("sync request has no project_id")
	}
	if !req.Operation.Valid() || req.Operation == reconcile.OpBulkUpload {
		return nil, fmt.Errorf("unsupported operation %q", req.Operation)
	}
	return &req, nil
}

func requestMessage(topic string, req *SyncRequest) (kafka.Message, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Type == "" {
		req.Type = TypeSyncRequested
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	return message(topic, req.ProjectID, req.Type, req)
}

func eventMessage(topic string, ev *SyncEvent) (kafka.Message, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Type == "" {
		ev.Type = TypeSyncCompleted
	}
	return message(topic, ev.ProjectID, ev.Type, ev)
}

// message keys by project so one project's messages stay ordered on one partition.
func message(topic, projectID, eventType string, payload interface{}) (kafka.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(projectID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "project_id", Value: []byte(projectID)},
		},
	}, nil
}

// NopPublisher drops everything. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishSyncRequest(context.Context, *SyncRequest) error { return ErrNoBroker }
func (NopPublisher) PublishSyncEvent(context.Context, *SyncEvent) error { return nil }
func (NopPublisher) Close() error { return nil }

// ErrNoBroker is returned when a request cannot be queued because Kafka is not configured.
var ErrNoBroker = errors.New("events: no kafka brokers configured")
