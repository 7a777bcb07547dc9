package port

import (
	"context"
	"time"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

// CodeStore persists one-time codes keyed by (subject, purpose). Save
// overwrites any live code for the pair, which is how superseding is
// enforced: once a new code is stored the old value can no longer match.
type CodeStore interface {
	Save(ctx context.Context, code domain.OneTimeCode, ttl time.Duration) error
	Fetch(ctx context.Context, subjectID string, purpose domain.CodePurpose) (*domain.OneTimeCode, error)
	// Consume marks the stored code consumed only if its id still matches, so
	// two concurrent verifications of the same code cannot both succeed.
	// Returns repository.ErrAlreadyConsumed on a repeat consume of the same
	// code, and repository.ErrNotFound when it was superseded or never stored.
	Consume(ctx context.Context, subjectID string, purpose domain.CodePurpose, codeID string) error
	IncrementAttempts(ctx context.Context, subjectID string, purpose domain.CodePurpose) (int, error)
	Invalidate(ctx context.Context, subjectID string, purpose domain.CodePurpose) error
}
