package port

import (
	"context"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

// Notifier delivers a one-time code to a destination. Delivery is best
// effort: a failure is reported to the caller but never rolls back issuance.
type Notifier interface {
	Send(ctx context.Context, destination string, purpose domain.CodePurpose, code string) error
}
