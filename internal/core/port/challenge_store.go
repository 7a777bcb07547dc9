package port

import (
	"context"
	"time"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

// ChallengeStore persists in-flight action challenges keyed by
// (subject, action). Save overwrites any prior live challenge for the pair,
// which is how superseding requests are enforced.
type ChallengeStore interface {
	Save(ctx context.Context, challenge domain.ActionChallenge, ttl time.Duration) error
	Fetch(ctx context.Context, subjectID string, action domain.ActionType) (*domain.ActionChallenge, error)
	// Remove deletes the challenge only if its id still matches, so a
	// superseded challenge cannot be consumed by a stale caller. Returns
	// repository.ErrNotFound when already removed or superseded.
	Remove(ctx context.Context, subjectID string, action domain.ActionType, challengeID string) error
}
