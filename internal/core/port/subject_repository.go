package port

import (
	"context"
	"time"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

// SubjectRepository exposes the security-relevant slice of the profile store.
// Subjects are never created by this service.
type SubjectRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Subject, error)
	GetByEmail(ctx context.Context, email string) (*domain.Subject, error)
	UpdateStatus(ctx context.Context, id string, status domain.SubjectStatus) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error
	AddProvider(ctx context.Context, id string, provider string, providerID string) error
	RemoveProvider(ctx context.Context, id string, provider string) error
}
