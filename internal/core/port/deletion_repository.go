package port

import (
	"context"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

// DeletionRepository persists staged account deletion requests.
type DeletionRepository interface {
	Create(ctx context.Context, request domain.DeletionRequest) error
	// GetActive returns the non-terminal deletion request for the subject.
	GetActive(ctx context.Context, subjectID string) (*domain.DeletionRequest, error)
	Update(ctx context.Context, request domain.DeletionRequest) error
}
