package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	SubjectID string           `json:"subject_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, subjectID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		SubjectID: subjectID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishCodeIssued publishes stepup.code.issued events.
func (p *EventPublisher) PublishCodeIssued(ctx context.Context, event domain.CodeIssuedEvent) error {
	payload := struct {
		SubjectID         string         `json:"subject_id"`
		Purpose           string         `json:"purpose"`
		MaskedDestination string         `json:"masked_destination"`
		IssuedAt          time.Time      `json:"issued_at"`
		ExpiresAt         time.Time      `json:"expires_at"`
		Delivered         bool           `json:"delivered"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID:         event.SubjectID,
		Purpose:           string(event.Purpose),
		MaskedDestination: event.MaskedDestination,
		IssuedAt:          event.IssuedAt,
		ExpiresAt:         event.ExpiresAt,
		Delivered:         event.Delivered,
		Metadata:          event.Metadata,
	}
	return p.publish(ctx, event.EventID, "code.issued", event.SubjectID, event.IssuedAt, payload)
}

// PublishChallengeExecuted publishes stepup.challenge.executed events.
func (p *EventPublisher) PublishChallengeExecuted(ctx context.Context, event domain.ChallengeExecutedEvent) error {
	payload := struct {
		ChallengeID string         `json:"challenge_id"`
		SubjectID   string         `json:"subject_id"`
		Action      string         `json:"action"`
		Method      string         `json:"method"`
		ExecutedAt  time.Time      `json:"executed_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		ChallengeID: event.ChallengeID,
		SubjectID:   event.SubjectID,
		Action:      string(event.Action),
		Method:      string(event.Method),
		ExecutedAt:  event.ExecutedAt,
		Metadata:    event.Metadata,
	}
	return p.publish(ctx, event.EventID, "challenge.executed", event.SubjectID, event.ExecutedAt, payload)
}

// PublishPasswordChanged publishes stepup.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		SubjectID string         `json:"subject_id"`
		ChangedAt time.Time      `json:"changed_at"`
		Reason    string         `json:"reason"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID: event.SubjectID,
		ChangedAt: event.ChangedAt,
		Reason:    event.Reason,
		Metadata:  event.Metadata,
	}
	return p.publish(ctx, event.EventID, "password.changed", event.SubjectID, event.ChangedAt, payload)
}

// PublishProviderLinked publishes stepup.provider.linked events.
func (p *EventPublisher) PublishProviderLinked(ctx context.Context, event domain.ProviderLinkedEvent) error {
	payload := struct {
		SubjectID  string         `json:"subject_id"`
		Provider   string         `json:"provider"`
		ProviderID string         `json:"provider_id"`
		LinkedAt   time.Time      `json:"linked_at"`
		ViaMerge   bool           `json:"via_merge"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID:  event.SubjectID,
		Provider:   event.Provider,
		ProviderID: event.ProviderID,
		LinkedAt:   event.LinkedAt,
		ViaMerge:   event.ViaMerge,
		Metadata:   event.Metadata,
	}
	return p.publish(ctx, event.EventID, "provider.linked", event.SubjectID, event.LinkedAt, payload)
}

// PublishProviderUnlinked publishes stepup.provider.unlinked events.
func (p *EventPublisher) PublishProviderUnlinked(ctx context.Context, event domain.ProviderUnlinkedEvent) error {
	payload := struct {
		SubjectID  string         `json:"subject_id"`
		Provider   string         `json:"provider"`
		UnlinkedAt time.Time      `json:"unlinked_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID:  event.SubjectID,
		Provider:   event.Provider,
		UnlinkedAt: event.UnlinkedAt,
		Metadata:   event.Metadata,
	}
	return p.publish(ctx, event.EventID, "provider.unlinked", event.SubjectID, event.UnlinkedAt, payload)
}

// PublishAccountDeactivated publishes stepup.account.deactivated events.
func (p *EventPublisher) PublishAccountDeactivated(ctx context.Context, event domain.AccountDeactivatedEvent) error {
	payload := struct {
		SubjectID     string         `json:"subject_id"`
		DeactivatedAt time.Time      `json:"deactivated_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID:     event.SubjectID,
		DeactivatedAt: event.DeactivatedAt,
		Metadata:      event.Metadata,
	}
	return p.publish(ctx, event.EventID, "account.deactivated", event.SubjectID, event.DeactivatedAt, payload)
}

// PublishAccountDeleted publishes stepup.account.deleted events, the purge
// signal for the data-retention collaborator.
func (p *EventPublisher) PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error {
	payload := struct {
		SubjectID string         `json:"subject_id"`
		DeletedAt time.Time      `json:"deleted_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID: event.SubjectID,
		DeletedAt: event.DeletedAt,
		Metadata:  event.Metadata,
	}
	return p.publish(ctx, event.EventID, "account.deleted", event.SubjectID, event.DeletedAt, payload)
}

// PublishMergeCompleted publishes stepup.merge.completed events.
func (p *EventPublisher) PublishMergeCompleted(ctx context.Context, event domain.MergeCompletedEvent) error {
	payload := struct {
		SubjectID   string         `json:"subject_id"`
		Provider    string         `json:"provider"`
		ProviderID  string         `json:"provider_id"`
		CompletedAt time.Time      `json:"completed_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID:   event.SubjectID,
		Provider:    event.Provider,
		ProviderID:  event.ProviderID,
		CompletedAt: event.CompletedAt,
		Metadata:    event.Metadata,
	}
	return p.publish(ctx, event.EventID, "merge.completed", event.SubjectID, event.CompletedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
