package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, subjectID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("subject_id", subjectID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishCodeIssued logs stepup.code.issued events.
func (p *StubPublisher) PublishCodeIssued(_ context.Context, event domain.CodeIssuedEvent) error {
	payload := map[string]any{
		"purpose":            string(event.Purpose),
		"masked_destination": event.MaskedDestination,
		"issued_at":          event.IssuedAt,
		"expires_at":         event.ExpiresAt,
		"delivered":          event.Delivered,
		"metadata":           event.Metadata,
	}
	p.logEvent("stepup.code.issued", event.SubjectID, event.IssuedAt, payload)
	return nil
}

// PublishChallengeExecuted logs stepup.challenge.executed events.
func (p *StubPublisher) PublishChallengeExecuted(_ context.Context, event domain.ChallengeExecutedEvent) error {
	payload := map[string]any{
		"challenge_id": event.ChallengeID,
		"action":       string(event.Action),
		"method":       string(event.Method),
		"executed_at":  event.ExecutedAt,
		"metadata":     event.Metadata,
	}
	p.logEvent("stepup.challenge.executed", event.SubjectID, event.ExecutedAt, payload)
	return nil
}

// PublishPasswordChanged logs stepup.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"changed_at": event.ChangedAt,
		"reason":     event.Reason,
		"metadata":   event.Metadata,
	}
	p.logEvent("stepup.password.changed", event.SubjectID, event.ChangedAt, payload)
	return nil
}

// PublishProviderLinked logs stepup.provider.linked events.
func (p *StubPublisher) PublishProviderLinked(_ context.Context, event domain.ProviderLinkedEvent) error {
	payload := map[string]any{
		"provider":    event.Provider,
		"provider_id": event.ProviderID,
		"linked_at":   event.LinkedAt,
		"via_merge":   event.ViaMerge,
		"metadata":    event.Metadata,
	}
	p.logEvent("stepup.provider.linked", event.SubjectID, event.LinkedAt, payload)
	return nil
}

// PublishProviderUnlinked logs stepup.provider.unlinked events.
func (p *StubPublisher) PublishProviderUnlinked(_ context.Context, event domain.ProviderUnlinkedEvent) error {
	payload := map[string]any{
		"provider":    event.Provider,
		"unlinked_at": event.UnlinkedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("stepup.provider.unlinked", event.SubjectID, event.UnlinkedAt, payload)
	return nil
}

// PublishAccountDeactivated logs stepup.account.deactivated events.
func (p *StubPublisher) PublishAccountDeactivated(_ context.Context, event domain.AccountDeactivatedEvent) error {
	payload := map[string]any{
		"deactivated_at": event.DeactivatedAt,
		"metadata":       event.Metadata,
	}
	p.logEvent("stepup.account.deactivated", event.SubjectID, event.DeactivatedAt, payload)
	return nil
}

// PublishAccountDeleted logs stepup.account.deleted events.
func (p *StubPublisher) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	payload := map[string]any{
		"deleted_at": event.DeletedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("stepup.account.deleted", event.SubjectID, event.DeletedAt, payload)
	return nil
}

// PublishMergeCompleted logs stepup.merge.completed events.
func (p *StubPublisher) PublishMergeCompleted(_ context.Context, event domain.MergeCompletedEvent) error {
	payload := map[string]any{
		"provider":     event.Provider,
		"provider_id":  event.ProviderID,
		"completed_at": event.CompletedAt,
		"metadata":     event.Metadata,
	}
	p.logEvent("stepup.merge.completed", event.SubjectID, event.CompletedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
