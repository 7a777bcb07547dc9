package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

// DeletionService is the guarded account-deletion flow: an OTP, then an exact
// typed confirmation phrase, with bounded phrase retries that force a fresh
// OTP once exhausted. The caller is expected to offer deactivation as a
// lighter alternative before starting this flow.
type DeletionService struct {
	subjects  port.SubjectRepository
	deletions port.DeletionRepository
	codes     *CodeService
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// RequestDeletionResult describes the staged request and the delivered OTP.
type RequestDeletionResult struct {
	RequestID         string
	State             domain.DeletionState
	MaskedDestination string
	CodeExpiresAt     time.Time
	Delivered         bool
}

// NewDeletionService constructs a DeletionService.
func NewDeletionService(subjects port.SubjectRepository, deletions port.DeletionRepository, codes *CodeService, events port.EventPublisher, logger *zap.Logger) *DeletionService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeletionService{
		subjects:  subjects,
		deletions: deletions,
		codes:     codes,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *DeletionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Request stages an account deletion and sends the account-deletion OTP. A
// prior unfinished request is cancelled and replaced. The subject moves to
// pending-deletion until the flow finishes or is cancelled.
func (s *DeletionService) Request(ctx context.Context, subjectID, ip, userAgent string) (*RequestDeletionResult, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	if s.subjects == nil || s.deletions == nil || s.codes == nil {
		return nil, fmt.Errorf("deletion service is not configured")
	}

	subject, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}
	if subject.Status == domain.SubjectStatusDeleted {
		return nil, ErrSubjectNotFound
	}

	if prior, err := s.deletions.GetActive(ctx, subjectID); err == nil {
		prior.State = domain.DeletionCancelled
		if upErr := s.deletions.Update(ctx, *prior); upErr != nil {
			return nil, fmt.Errorf("supersede deletion request: %w", upErr)
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup deletion request: %w", err)
	}

	delivery, err := s.codes.Issue(ctx, IssueCodeInput{
		SubjectID: subject.ID,
		Purpose:   domain.CodePurposeAccountDeletion,
		IP:        ip,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, err
	}

	request := domain.DeletionRequest{
		ID:          uuid.NewString(),
		SubjectID:   subject.ID,
		State:       domain.DeletionOtpSent,
		RequestedAt: s.now().UTC(),
	}

	if err := s.deletions.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("store deletion request: %w", err)
	}

	if err := s.subjects.UpdateStatus(ctx, subject.ID, domain.SubjectStatusPendingDeletion); err != nil {
		return nil, fmt.Errorf("mark subject pending deletion: %w", err)
	}

	return &RequestDeletionResult{
		RequestID:         request.ID,
		State:             request.State,
		MaskedDestination: delivery.MaskedDestination,
		CodeExpiresAt:     delivery.ExpiresAt,
		Delivered:         delivery.Delivered,
	}, nil
}

// VerifyOtp advances the staged request after the account-deletion code
// checks out. Deletion itself does not happen here.
func (s *DeletionService) VerifyOtp(ctx context.Context, subjectID, code string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return fmt.Errorf("subject id is required")
	}
	if s.deletions == nil || s.codes == nil {
		return fmt.Errorf("deletion service is not configured")
	}

	request, err := s.activeRequest(ctx, subjectID)
	if err != nil {
		return err
	}
	if request.State != domain.DeletionOtpSent {
		return ErrDeletionStateInvalid
	}

	if err := s.codes.Verify(ctx, subjectID, domain.CodePurposeAccountDeletion, code); err != nil {
		return err
	}

	request.State = domain.DeletionOtpVerified
	request.OtpConsumed = true
	request.PhraseAttempts = 0

	if err := s.deletions.Update(ctx, *request); err != nil {
		return fmt.Errorf("update deletion request: %w", err)
	}

	return nil
}

// Confirm finalizes the deletion when the typed phrase matches exactly. A
// mismatch keeps the request verified until retries run out, at which point
// the flow drops back to otp-sent with a fresh code.
func (s *DeletionService) Confirm(ctx context.Context, subjectID, typedPhrase string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return fmt.Errorf("subject id is required")
	}
	if s.subjects == nil || s.deletions == nil {
		return fmt.Errorf("deletion service is not configured")
	}

	request, err := s.activeRequest(ctx, subjectID)
	if err != nil {
		return err
	}
	if request.State != domain.DeletionOtpVerified {
		return ErrDeletionStateInvalid
	}

	if typedPhrase != domain.DeletionConfirmationPhrase {
		return s.handlePhraseMismatch(ctx, request)
	}

	now := s.now().UTC()
	request.State = domain.DeletionConfirmed
	request.ConfirmedAt = &now

	if err := s.deletions.Update(ctx, *request); err != nil {
		return fmt.Errorf("update deletion request: %w", err)
	}

	if err := s.subjects.UpdateStatus(ctx, subjectID, domain.SubjectStatusDeleted); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("delete subject: %w", err)
	}

	s.publishAccountDeletedEvent(ctx, request, now)

	return nil
}

// Cancel abandons the staged deletion and restores the subject to active.
func (s *DeletionService) Cancel(ctx context.Context, subjectID string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return fmt.Errorf("subject id is required")
	}
	if s.subjects == nil || s.deletions == nil {
		return fmt.Errorf("deletion service is not configured")
	}

	request, err := s.activeRequest(ctx, subjectID)
	if err != nil {
		return err
	}

	request.State = domain.DeletionCancelled
	if err := s.deletions.Update(ctx, *request); err != nil {
		return fmt.Errorf("update deletion request: %w", err)
	}

	if s.codes != nil {
		if err := s.codes.Invalidate(ctx, subjectID, domain.CodePurposeAccountDeletion); err != nil {
			s.logger.Warn("deletion code invalidation failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}

	if err := s.subjects.UpdateStatus(ctx, subjectID, domain.SubjectStatusActive); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("restore subject status: %w", err)
	}

	return nil
}

func (s *DeletionService) activeRequest(ctx context.Context, subjectID string) (*domain.DeletionRequest, error) {
	request, err := s.deletions.GetActive(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDeletionNotFound
		}
		return nil, fmt.Errorf("lookup deletion request: %w", err)
	}
	return request, nil
}

func (s *DeletionService) handlePhraseMismatch(ctx context.Context, request *domain.DeletionRequest) error {
	request.PhraseAttempts++

	if request.PhraseAttempts < domain.MaxPhraseAttempts {
		if err := s.deletions.Update(ctx, *request); err != nil {
			return fmt.Errorf("update deletion request: %w", err)
		}
		return ErrPhraseMismatch
	}

	// Retries exhausted: drop back to otp-sent and make the subject start
	// over with a fresh code.
	request.State = domain.DeletionOtpSent
	request.OtpConsumed = false
	request.PhraseAttempts = 0

	if err := s.deletions.Update(ctx, *request); err != nil {
		return fmt.Errorf("update deletion request: %w", err)
	}

	if s.codes != nil {
		if _, err := s.codes.Issue(ctx, IssueCodeInput{
			SubjectID: request.SubjectID,
			Purpose:   domain.CodePurposeAccountDeletion,
		}); err != nil {
			s.logger.Warn("deletion code reissue failed", zap.String("subject_id", request.SubjectID), zap.Error(err))
		}
	}

	return ErrPhraseAttemptsExhausted
}

func (s *DeletionService) publishAccountDeletedEvent(ctx context.Context, request *domain.DeletionRequest, deletedAt time.Time) {
	if s.events == nil {
		return
	}

	// Doubles as the purge signal for the data-retention consumer.
	event := domain.AccountDeletedEvent{
		EventID:   uuid.NewString(),
		SubjectID: request.SubjectID,
		DeletedAt: deletedAt,
		Metadata:  map[string]any{"deletion_request_id": request.ID},
	}

	if err := s.events.PublishAccountDeleted(ctx, event); err != nil {
		s.logger.Warn("publish account deleted event failed", zap.String("subject_id", request.SubjectID), zap.Error(err))
	}
}
