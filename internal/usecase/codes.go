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
	"github.com/arklim/lead-platform-stepup/internal/infra/config"
	"github.com/arklim/lead-platform-stepup/internal/infra/security"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

const (
	defaultCodeTTL = 10 * time.Minute

	codeIssueRateLimitScope = "code_issue"
)

// CodeService issues and verifies one-time codes bound to (subject, purpose).
// Issuing a new code supersedes any live code for the pair; verification
// consumes the code atomically so it can succeed at most once.
type CodeService struct {
	cfg        *config.AppConfig
	subjects   port.SubjectRepository
	codes      port.CodeStore
	rateLimits port.RateLimitStore
	notifier   port.Notifier
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
	codeTTL    time.Duration
}

// IssueCodeInput captures an issuance request. Destination overrides the
// subject's stored email; trusted callers only (the merge flow derives it
// from a verified token).
type IssueCodeInput struct {
	SubjectID   string
	Purpose     domain.CodePurpose
	Destination string
	IP          string
	UserAgent   string
}

// IssueCodeResult describes the issued code. Delivered reports best-effort
// delivery; false is a warning, not a failure of issuance.
type IssueCodeResult struct {
	CodeID            string
	MaskedDestination string
	ExpiresAt         time.Time
	Delivered         bool
}

// NewCodeService constructs a CodeService.
func NewCodeService(cfg *config.AppConfig, subjects port.SubjectRepository, codes port.CodeStore, rateLimits port.RateLimitStore, notifier port.Notifier, events port.EventPublisher, logger *zap.Logger) *CodeService {
	if logger == nil {
		logger = zap.NewNop()
	}

	codeTTL := defaultCodeTTL
	if cfg != nil && cfg.Challenge.CodeTTL > 0 {
		codeTTL = cfg.Challenge.CodeTTL
	}

	return &CodeService{
		cfg:        cfg,
		subjects:   subjects,
		codes:      codes,
		rateLimits: rateLimits,
		notifier:   notifier,
		events:     events,
		logger:     logger,
		now:        time.Now,
		codeTTL:    codeTTL,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *CodeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTTL allows tests to override the code TTL.
func (s *CodeService) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		s.codeTTL = ttl
	}
}

// Issue generates a fresh code for (subject, purpose), superseding any prior
// live code, and hands it to the notification transport. Delivery failure
// never rolls back issuance.
func (s *CodeService) Issue(ctx context.Context, input IssueCodeInput) (*IssueCodeResult, error) {
	subjectID := strings.TrimSpace(input.SubjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	if !input.Purpose.Valid() {
		return nil, fmt.Errorf("invalid code purpose %q", input.Purpose)
	}
	if s.subjects == nil || s.codes == nil {
		return nil, fmt.Errorf("code service is not configured")
	}

	now := s.now().UTC()
	if err := s.enforceIssueRateLimit(ctx, subjectID, input.Purpose, now); err != nil {
		return nil, err
	}

	subject, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}

	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		destination = strings.TrimSpace(subject.Email)
	}
	if destination == "" {
		return nil, fmt.Errorf("subject has no destination for code delivery")
	}

	value, err := security.GenerateNumericCode(domain.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	code := domain.OneTimeCode{
		ID:          uuid.NewString(),
		SubjectID:   subject.ID,
		Purpose:     input.Purpose,
		Destination: destination,
		Code:        value,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.codeTTL),
	}

	if err := s.codes.Save(ctx, code, s.codeTTL); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}

	delivered := true
	if s.notifier != nil {
		if sendErr := s.notifier.Send(ctx, destination, input.Purpose, value); sendErr != nil {
			delivered = false
			s.logger.Warn("code delivery failed",
				zap.String("subject_id", subject.ID),
				zap.String("purpose", string(input.Purpose)),
				zap.Error(sendErr))
		}
	}

	result := &IssueCodeResult{
		CodeID:            code.ID,
		MaskedDestination: maskDestination(destination),
		ExpiresAt:         code.ExpiresAt,
		Delivered:         delivered,
	}

	s.publishCodeIssuedEvent(ctx, code, result, input.IP, input.UserAgent)

	return result, nil
}

// Verify checks the presented code against the live code for the pair and
// consumes it on success. Comparison is constant-time; a consumed code is
// reported as used, never as unknown, so a replayed verify is detectable.
func (s *CodeService) Verify(ctx context.Context, subjectID string, purpose domain.CodePurpose, presented string) error {
	subjectID = strings.TrimSpace(subjectID)
	presented = strings.TrimSpace(presented)
	if subjectID == "" || presented == "" {
		return ErrInvalidCredential
	}
	if s.codes == nil {
		return fmt.Errorf("code service is not configured")
	}

	stored, err := s.codes.Fetch(ctx, subjectID, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredential
		}
		return fmt.Errorf("lookup code: %w", err)
	}

	now := s.now().UTC()
	if stored.Expired(now) {
		return ErrCodeExpired
	}

	if !security.ConstantTimeEquals(presented, stored.Code) {
		attempts, incErr := s.codes.IncrementAttempts(ctx, subjectID, purpose)
		if incErr != nil && !errors.Is(incErr, repository.ErrNotFound) {
			s.logger.Warn("code attempt increment failed",
				zap.String("subject_id", subjectID),
				zap.String("purpose", string(purpose)),
				zap.Error(incErr))
		}
		if attempts >= domain.MaxCodeAttempts {
			if invErr := s.codes.Invalidate(ctx, subjectID, purpose); invErr != nil {
				s.logger.Warn("code invalidation failed",
					zap.String("subject_id", subjectID),
					zap.Error(invErr))
			}
		}
		return ErrInvalidCredential
	}

	if stored.Consumed() {
		return ErrCodeAlreadyUsed
	}

	if err := s.codes.Consume(ctx, subjectID, purpose, stored.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyConsumed):
			return ErrCodeAlreadyUsed
		case errors.Is(err, repository.ErrNotFound):
			// Superseded between fetch and consume.
			return ErrInvalidCredential
		}
		return fmt.Errorf("consume code: %w", err)
	}

	return nil
}

// Invalidate discards any live code for the pair.
func (s *CodeService) Invalidate(ctx context.Context, subjectID string, purpose domain.CodePurpose) error {
	if s.codes == nil {
		return fmt.Errorf("code service is not configured")
	}
	return s.codes.Invalidate(ctx, strings.TrimSpace(subjectID), purpose)
}

func (s *CodeService) enforceIssueRateLimit(ctx context.Context, subjectID string, purpose domain.CodePurpose, now time.Time) error {
	if s.rateLimits == nil || s.cfg == nil {
		return nil
	}

	limit := s.cfg.RateLimit.IssueMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := s.cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}

	storageKey := fmt.Sprintf("%s:%s:%s", codeIssueRateLimitScope, subjectID, purpose)

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("code issue rate limit trim failed", zap.String("scope", codeIssueRateLimitScope), zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("code issue rate limit count failed", zap.String("scope", codeIssueRateLimitScope), zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.rateLimits.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("code issue rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: codeIssueRateLimitScope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("code issue rate limit record failed", zap.Error(err))
	}

	return nil
}

func (s *CodeService) publishCodeIssuedEvent(ctx context.Context, code domain.OneTimeCode, result *IssueCodeResult, ip, userAgent string) {
	if s.events == nil {
		return
	}

	metadata := map[string]any{}
	if trimmed := strings.TrimSpace(ip); trimmed != "" {
		metadata["ip"] = trimmed
	}
	if trimmed := strings.TrimSpace(userAgent); trimmed != "" {
		metadata["user_agent"] = trimmed
	}

	event := domain.CodeIssuedEvent{
		EventID:           uuid.NewString(),
		SubjectID:         code.SubjectID,
		Purpose:           code.Purpose,
		MaskedDestination: result.MaskedDestination,
		IssuedAt:          code.IssuedAt,
		ExpiresAt:         code.ExpiresAt,
		Delivered:         result.Delivered,
		Metadata:          metadataCopy(metadata),
	}

	if err := s.events.PublishCodeIssued(ctx, event); err != nil {
		s.logger.Warn("publish code issued event failed", zap.String("subject_id", code.SubjectID), zap.Error(err))
	}
}
