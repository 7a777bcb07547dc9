package port

import (
	"context"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

// EventPublisher publishes security events to the message bus.
type EventPublisher interface {
	PublishCodeIssued(ctx context.Context, event domain.CodeIssuedEvent) error
	PublishChallengeExecuted(ctx context.Context, event domain.ChallengeExecutedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishProviderLinked(ctx context.Context, event domain.ProviderLinkedEvent) error
	PublishProviderUnlinked(ctx context.Context, event domain.ProviderUnlinkedEvent) error
	PublishAccountDeactivated(ctx context.Context, event domain.AccountDeactivatedEvent) error
	PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error
	PublishMergeCompleted(ctx context.Context, event domain.MergeCompletedEvent) error
}
