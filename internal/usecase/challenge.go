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
	defaultChallengeTTL = 15 * time.Minute

	passwordSetReason    = "password_set"
	passwordChangeReason = "password_change"
)

// ChallengeService drives a sensitive action through request, verification
// and execution. Exactly one live challenge exists per (subject, action); a
// second request supersedes the first.
type ChallengeService struct {
	cfg               *config.AppConfig
	subjects          port.SubjectRepository
	challenges        port.ChallengeStore
	codes             *CodeService
	verifier          *CredentialVerifier
	hasher            port.PasswordHasher
	passwordValidator *security.PasswordValidator
	events            port.EventPublisher
	logger            *zap.Logger
	now               func() time.Time
	challengeTTL      time.Duration
}

// RequestChallengeInput captures a sensitive-action request.
type RequestChallengeInput struct {
	SubjectID   string
	Action      domain.ActionType
	Method      domain.VerificationMethod
	Provider    string
	ProviderID  string
	NewPassword string
	IP          string
	UserAgent   string
}

// RequestChallengeResult describes the created challenge. Delivery is set
// only for the OTP method.
type RequestChallengeResult struct {
	ChallengeID string
	Action      domain.ActionType
	Method      domain.VerificationMethod
	State       domain.ChallengeState
	ExpiresAt   time.Time
	Delivery    *IssueCodeResult
}

// InitiateChangeInput captures a two-phase password change request. The
// current password is verified before any challenge exists.
type InitiateChangeInput struct {
	SubjectID       string
	CurrentPassword string
	NewPassword     string
	IP              string
	UserAgent       string
}

// VerifyChallengeInput carries the credential that authorizes a pending action.
type VerifyChallengeInput struct {
	SubjectID  string
	Action     domain.ActionType
	Credential string
	IP         string
	UserAgent  string
}

// VerifyChallengeResult summarizes an executed action.
type VerifyChallengeResult struct {
	ChallengeID string
	Action      domain.ActionType
	ExecutedAt  time.Time
}

// NewChallengeService constructs a ChallengeService.
func NewChallengeService(cfg *config.AppConfig, subjects port.SubjectRepository, challenges port.ChallengeStore, codes *CodeService, verifier *CredentialVerifier, hasher port.PasswordHasher, validator *security.PasswordValidator, events port.EventPublisher, logger *zap.Logger) *ChallengeService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	challengeTTL := defaultChallengeTTL
	if cfg != nil && cfg.Challenge.ChallengeTTL > 0 {
		challengeTTL = cfg.Challenge.ChallengeTTL
	}

	return &ChallengeService{
		cfg:               cfg,
		subjects:          subjects,
		challenges:        challenges,
		codes:             codes,
		verifier:          verifier,
		hasher:            hasher,
		passwordValidator: validator,
		events:            events,
		logger:            logger,
		now:               time.Now,
		challengeTTL:      challengeTTL,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *ChallengeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTTL allows tests to override the challenge TTL.
func (s *ChallengeService) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		s.challengeTTL = ttl
	}
}

// Request opens a challenge for the action. With the OTP method a code is
// issued immediately and the challenge starts issued; with the password
// method it stays requested until Verify supplies the password.
func (s *ChallengeService) Request(ctx context.Context, input RequestChallengeInput) (*RequestChallengeResult, error) {
	subjectID := strings.TrimSpace(input.SubjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	if !input.Action.Valid() {
		return nil, ErrUnsupportedAction
	}
	if !input.Method.Valid() {
		return nil, ErrUnsupportedMethod
	}
	if s.subjects == nil || s.challenges == nil || s.codes == nil {
		return nil, fmt.Errorf("challenge service is not configured")
	}

	switch input.Action {
	case domain.ActionDelete:
		// Deletion runs through the guarded flow with its confirmation phrase.
		return nil, ErrUnsupportedAction
	case domain.ActionChangePassword:
		// Change requires the current password checked up front.
		return nil, ErrCurrentPasswordRequired
	}

	subject, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}

	if input.Method == domain.MethodPassword && !subject.HasPassword() {
		return nil, ErrNoPasswordSet
	}

	payload, err := s.buildPayload(input, subject)
	if err != nil {
		return nil, err
	}

	return s.openChallenge(ctx, subject.ID, input.Action, input.Method, payload, input.IP, input.UserAgent)
}

// InitiateChange starts the two-phase password change: the current password
// is verified first, and only on success is a challenge created with a
// change-password code already sent. The candidate password is held hashed in
// the challenge payload and discarded with it.
func (s *ChallengeService) InitiateChange(ctx context.Context, input InitiateChangeInput) (*RequestChallengeResult, error) {
	subjectID := strings.TrimSpace(input.SubjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	if s.verifier == nil || s.hasher == nil {
		return nil, fmt.Errorf("challenge service is not configured")
	}

	currentPassword := strings.TrimSpace(input.CurrentPassword)
	if currentPassword == "" {
		return nil, ErrCurrentPasswordRequired
	}

	if err := s.verifier.VerifyPassword(ctx, subjectID, currentPassword); err != nil {
		return nil, err
	}

	newPassword := strings.TrimSpace(input.NewPassword)
	if err := s.validateNewPassword(newPassword, currentPassword); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash new password: %w", err)
	}

	payload := domain.ChallengePayload{NewPasswordHash: hash}

	return s.openChallenge(ctx, subjectID, domain.ActionChangePassword, domain.MethodOTP, payload, input.IP, input.UserAgent)
}

// Verify validates the credential for the live challenge and, on success,
// executes the action's side effect. The challenge is claimed before the
// side effect runs so a superseded or concurrent verify cannot execute twice.
func (s *ChallengeService) Verify(ctx context.Context, input VerifyChallengeInput) (*VerifyChallengeResult, error) {
	subjectID := strings.TrimSpace(input.SubjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	if !input.Action.Valid() {
		return nil, ErrUnsupportedAction
	}
	if s.challenges == nil || s.verifier == nil {
		return nil, fmt.Errorf("challenge service is not configured")
	}

	challenge, err := s.challenges.Fetch(ctx, subjectID, input.Action)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("lookup challenge: %w", err)
	}
	if challenge.SubjectID != subjectID {
		return nil, ErrUnauthorized
	}

	now := s.now().UTC()
	if challenge.Expired(now) {
		if remErr := s.challenges.Remove(ctx, subjectID, input.Action, challenge.ID); remErr != nil && !errors.Is(remErr, repository.ErrNotFound) {
			s.logger.Warn("expired challenge cleanup failed", zap.String("subject_id", subjectID), zap.Error(remErr))
		}
		return nil, ErrChallengeExpired
	}

	if err := s.verifier.Verify(ctx, subjectID, challenge.Method, input.Action.CodePurpose(), input.Credential); err != nil {
		return nil, err
	}

	// Claim the challenge before acting so exactly one verify wins a race
	// with a superseding request or a concurrent verify.
	if err := s.challenges.Remove(ctx, subjectID, input.Action, challenge.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("claim challenge: %w", err)
	}

	executedAt := s.now().UTC()
	if err := s.execute(ctx, challenge, executedAt, input.IP, input.UserAgent); err != nil {
		return nil, err
	}

	s.publishChallengeExecutedEvent(ctx, challenge, executedAt, input.IP, input.UserAgent)

	return &VerifyChallengeResult{
		ChallengeID: challenge.ID,
		Action:      challenge.Action,
		ExecutedAt:  executedAt,
	}, nil
}

// Cancel aborts the live challenge for the pair.
func (s *ChallengeService) Cancel(ctx context.Context, subjectID string, action domain.ActionType) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return fmt.Errorf("subject id is required")
	}
	if !action.Valid() {
		return ErrUnsupportedAction
	}
	if s.challenges == nil {
		return fmt.Errorf("challenge service is not configured")
	}

	challenge, err := s.challenges.Fetch(ctx, subjectID, action)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("lookup challenge: %w", err)
	}

	if err := s.challenges.Remove(ctx, subjectID, action, challenge.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("cancel challenge: %w", err)
	}

	return nil
}

func (s *ChallengeService) buildPayload(input RequestChallengeInput, subject *domain.Subject) (domain.ChallengePayload, error) {
	var payload domain.ChallengePayload

	switch input.Action {
	case domain.ActionUnlinkProvider:
		provider := strings.TrimSpace(input.Provider)
		if provider == "" {
			return payload, fmt.Errorf("provider is required")
		}
		if !subject.HasProvider(provider) {
			return payload, ErrProviderNotLinked
		}
		payload.Provider = provider
	case domain.ActionLinkProvider:
		provider := strings.TrimSpace(input.Provider)
		providerID := strings.TrimSpace(input.ProviderID)
		if provider == "" || providerID == "" {
			return payload, fmt.Errorf("provider identity is required")
		}
		if subject.HasProvider(provider) {
			return payload, ErrProviderAlreadyLinked
		}
		payload.Provider = provider
		payload.ProviderID = providerID
	case domain.ActionSetPassword:
		if subject.HasPassword() {
			return payload, ErrPasswordAlreadySet
		}
		newPassword := strings.TrimSpace(input.NewPassword)
		if err := s.validateNewPassword(newPassword, ""); err != nil {
			return payload, err
		}
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return payload, fmt.Errorf("hash new password: %w", err)
		}
		payload.NewPasswordHash = hash
	}

	return payload, nil
}

func (s *ChallengeService) openChallenge(ctx context.Context, subjectID string, action domain.ActionType, method domain.VerificationMethod, payload domain.ChallengePayload, ip, userAgent string) (*RequestChallengeResult, error) {
	now := s.now().UTC()

	challenge := domain.ActionChallenge{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Action:    action,
		Method:    method,
		State:     domain.ChallengeRequested,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	var delivery *IssueCodeResult
	if method == domain.MethodOTP {
		result, err := s.codes.Issue(ctx, IssueCodeInput{
			SubjectID: subjectID,
			Purpose:   action.CodePurpose(),
			IP:        ip,
			UserAgent: userAgent,
		})
		if err != nil {
			return nil, err
		}
		delivery = result
		challenge.State = domain.ChallengeIssued
	}

	if err := s.challenges.Save(ctx, challenge, s.challengeTTL); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	return &RequestChallengeResult{
		ChallengeID: challenge.ID,
		Action:      challenge.Action,
		Method:      challenge.Method,
		State:       challenge.State,
		ExpiresAt:   challenge.ExpiresAt,
		Delivery:    delivery,
	}, nil
}

func (s *ChallengeService) execute(ctx context.Context, challenge *domain.ActionChallenge, executedAt time.Time, ip, userAgent string) error {
	subject, err := s.subjects.GetByID(ctx, challenge.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("lookup subject: %w", err)
	}

	switch challenge.Action {
	case domain.ActionUnlinkProvider:
		return s.executeUnlink(ctx, subject, challenge.Payload.Provider, executedAt, ip, userAgent)
	case domain.ActionLinkProvider:
		return s.executeLink(ctx, subject, challenge.Payload.Provider, challenge.Payload.ProviderID, executedAt, ip, userAgent)
	case domain.ActionDeactivate:
		return s.executeDeactivate(ctx, subject, executedAt, ip, userAgent)
	case domain.ActionSetPassword:
		return s.executePasswordUpdate(ctx, subject, challenge.Payload.NewPasswordHash, passwordSetReason, executedAt, ip, userAgent)
	case domain.ActionChangePassword:
		return s.executePasswordUpdate(ctx, subject, challenge.Payload.NewPasswordHash, passwordChangeReason, executedAt, ip, userAgent)
	default:
		return ErrUnsupportedAction
	}
}

func (s *ChallengeService) executeUnlink(ctx context.Context, subject *domain.Subject, provider string, executedAt time.Time, ip, userAgent string) error {
	if !subject.HasProvider(provider) {
		return ErrProviderNotLinked
	}
	if !subject.HasPassword() && len(subject.Providers) <= 1 {
		return ErrLastCredentialRemoval
	}

	if err := s.subjects.RemoveProvider(ctx, subject.ID, provider); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProviderNotLinked
		}
		return fmt.Errorf("remove provider: %w", err)
	}

	if s.events != nil {
		event := domain.ProviderUnlinkedEvent{
			EventID:    uuid.NewString(),
			SubjectID:  subject.ID,
			Provider:   provider,
			UnlinkedAt: executedAt,
			Metadata:   requestMetadata(ip, userAgent),
		}
		if err := s.events.PublishProviderUnlinked(ctx, event); err != nil {
			s.logger.Warn("publish provider unlinked event failed", zap.String("subject_id", subject.ID), zap.Error(err))
		}
	}

	return nil
}

func (s *ChallengeService) executeLink(ctx context.Context, subject *domain.Subject, provider, providerID string, executedAt time.Time, ip, userAgent string) error {
	if subject.HasProvider(provider) {
		return ErrProviderAlreadyLinked
	}

	if err := s.subjects.AddProvider(ctx, subject.ID, provider, providerID); err != nil {
		return fmt.Errorf("add provider: %w", err)
	}

	if s.events != nil {
		event := domain.ProviderLinkedEvent{
			EventID:    uuid.NewString(),
			SubjectID:  subject.ID,
			Provider:   provider,
			ProviderID: providerID,
			LinkedAt:   executedAt,
			Metadata:   requestMetadata(ip, userAgent),
		}
		if err := s.events.PublishProviderLinked(ctx, event); err != nil {
			s.logger.Warn("publish provider linked event failed", zap.String("subject_id", subject.ID), zap.Error(err))
		}
	}

	return nil
}

func (s *ChallengeService) executeDeactivate(ctx context.Context, subject *domain.Subject, executedAt time.Time, ip, userAgent string) error {
	if err := s.subjects.UpdateStatus(ctx, subject.ID, domain.SubjectStatusDeactivated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("deactivate subject: %w", err)
	}

	if s.events != nil {
		event := domain.AccountDeactivatedEvent{
			EventID:       uuid.NewString(),
			SubjectID:     subject.ID,
			DeactivatedAt: executedAt,
			Metadata:      requestMetadata(ip, userAgent),
		}
		if err := s.events.PublishAccountDeactivated(ctx, event); err != nil {
			s.logger.Warn("publish account deactivated event failed", zap.String("subject_id", subject.ID), zap.Error(err))
		}
	}

	return nil
}

func (s *ChallengeService) executePasswordUpdate(ctx context.Context, subject *domain.Subject, passwordHash, reason string, executedAt time.Time, ip, userAgent string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return fmt.Errorf("challenge payload has no password material")
	}

	if err := s.subjects.UpdatePassword(ctx, subject.ID, passwordHash, security.PasswordAlgo, executedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}

	if s.events != nil {
		// The session service consumes this to revoke active sessions.
		event := domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			SubjectID: subject.ID,
			ChangedAt: executedAt,
			Reason:    reason,
			Metadata:  requestMetadata(ip, userAgent),
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event failed", zap.String("subject_id", subject.ID), zap.Error(err))
		}
	}

	return nil
}

func (s *ChallengeService) validateNewPassword(password, current string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrNewPasswordInvalid)
	}

	if err := s.passwordValidator.Validate(password); err != nil {
		return fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
	}

	if current != "" {
		if err := security.RequireDifferentFrom(current).Validate(password); err != nil {
			return fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
		}
	}

	return nil
}

func (s *ChallengeService) publishChallengeExecutedEvent(ctx context.Context, challenge *domain.ActionChallenge, executedAt time.Time, ip, userAgent string) {
	if s.events == nil {
		return
	}

	event := domain.ChallengeExecutedEvent{
		EventID:     uuid.NewString(),
		ChallengeID: challenge.ID,
		SubjectID:   challenge.SubjectID,
		Action:      challenge.Action,
		Method:      challenge.Method,
		ExecutedAt:  executedAt,
		Metadata:    requestMetadata(ip, userAgent),
	}

	if err := s.events.PublishChallengeExecuted(ctx, event); err != nil {
		s.logger.Warn("publish challenge executed event failed", zap.String("subject_id", challenge.SubjectID), zap.Error(err))
	}
}

func requestMetadata(ip, userAgent string) map[string]any {
	metadata := map[string]any{}
	if trimmed := strings.TrimSpace(ip); trimmed != "" {
		metadata["ip"] = trimmed
	}
	if trimmed := strings.TrimSpace(userAgent); trimmed != "" {
		metadata["user_agent"] = trimmed
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}
