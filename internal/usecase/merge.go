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
	"github.com/arklim/lead-platform-stepup/internal/infra/security"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

// MergeService reconciles a federated sign-in whose email already belongs to
// an existing subject. A signed, single-use token carries the claim; the
// subject must prove possession of an existing credential before the new
// provider identity is linked.
type MergeService struct {
	subjects    port.SubjectRepository
	signer      port.MergeTokenSigner
	redemptions port.MergeRedemptionStore
	verifier    *CredentialVerifier
	codes       *CodeService
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// IssueMergeTokenInput captures the collision detected on the federated
// callback path.
type IssueMergeTokenInput struct {
	Email      string
	Provider   string
	ProviderID string
}

// IssueMergeTokenResult carries the signed token for the client to present later.
type IssueMergeTokenResult struct {
	Token     string
	ExpiresAt time.Time
}

// RedeemMergeInput carries the token plus the credential proving ownership of
// the existing account.
type RedeemMergeInput struct {
	Token      string
	Method     domain.VerificationMethod
	Credential string
	IP         string
	UserAgent  string
}

// RedeemMergeResult reports the merged subject so the caller can issue a session.
type RedeemMergeResult struct {
	Subject    *domain.Subject
	Provider   string
	ProviderID string
}

// NewMergeService constructs a MergeService.
func NewMergeService(subjects port.SubjectRepository, signer port.MergeTokenSigner, redemptions port.MergeRedemptionStore, verifier *CredentialVerifier, codes *CodeService, events port.EventPublisher, logger *zap.Logger) *MergeService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MergeService{
		subjects:    subjects,
		signer:      signer,
		redemptions: redemptions,
		verifier:    verifier,
		codes:       codes,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *MergeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// IssueToken signs a merge assertion for the detected email collision. The
// email must belong to an existing subject.
func (s *MergeService) IssueToken(ctx context.Context, input IssueMergeTokenInput) (*IssueMergeTokenResult, error) {
	email := strings.TrimSpace(input.Email)
	provider := strings.TrimSpace(input.Provider)
	providerID := strings.TrimSpace(input.ProviderID)
	if email == "" || provider == "" || providerID == "" {
		return nil, fmt.Errorf("email and provider identity are required")
	}
	if s.subjects == nil || s.signer == nil {
		return nil, fmt.Errorf("merge service is not configured")
	}

	subject, err := s.subjects.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}
	if subject.HasProvider(provider) {
		return nil, ErrProviderAlreadyLinked
	}

	assertion := domain.MergeAssertion{
		Email:      email,
		Provider:   provider,
		ProviderID: providerID,
	}

	token, err := s.signer.Sign(assertion)
	if err != nil {
		return nil, fmt.Errorf("sign merge token: %w", err)
	}

	verified, err := s.signer.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("read back merge token: %w", err)
	}

	return &IssueMergeTokenResult{
		Token:     token,
		ExpiresAt: verified.ExpiresAt,
	}, nil
}

// RequestCode issues a link-verification OTP for the token's subject. The
// destination is derived from the verified token, never from client input,
// so a code can not be routed to an attacker-chosen address. The token is
// not consumed here.
func (s *MergeService) RequestCode(ctx context.Context, token string) (*IssueCodeResult, error) {
	if s.codes == nil {
		return nil, fmt.Errorf("merge service is not configured")
	}

	assertion, err := s.verifyToken(token)
	if err != nil {
		return nil, err
	}

	subject, err := s.subjects.GetByEmail(ctx, assertion.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMergeTokenInvalid
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}

	return s.codes.Issue(ctx, IssueCodeInput{
		SubjectID:   subject.ID,
		Purpose:     domain.CodePurposeLinkVerification,
		Destination: assertion.Email,
	})
}

// Redeem verifies the token, atomically marks it used, then checks the
// credential against the existing subject. A failed credential burns the
// token: marking happens before the credential check so a replayed token can
// never be retried into success.
func (s *MergeService) Redeem(ctx context.Context, input RedeemMergeInput) (*RedeemMergeResult, error) {
	if s.subjects == nil || s.signer == nil || s.redemptions == nil || s.verifier == nil {
		return nil, fmt.Errorf("merge service is not configured")
	}

	assertion, err := s.verifyToken(input.Token)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ttl := assertion.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil, ErrMergeTokenExpired
	}

	// Redemption markers outlive the token so a marker expiry race cannot
	// reopen a consumed token.
	first, err := s.redemptions.MarkRedeemed(ctx, assertion.TokenID, ttl+time.Minute)
	if err != nil {
		return nil, fmt.Errorf("mark merge token redeemed: %w", err)
	}
	if !first {
		return nil, ErrMergeTokenUsed
	}

	subject, err := s.subjects.GetByEmail(ctx, assertion.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMergeTokenInvalid
		}
		return nil, fmt.Errorf("lookup subject: %w", err)
	}

	if err := s.verifier.Verify(ctx, subject.ID, input.Method, domain.CodePurposeLinkVerification, input.Credential); err != nil {
		return nil, err
	}

	if subject.HasProvider(assertion.Provider) {
		return nil, ErrProviderAlreadyLinked
	}

	if err := s.subjects.AddProvider(ctx, subject.ID, assertion.Provider, assertion.ProviderID); err != nil {
		return nil, fmt.Errorf("add provider: %w", err)
	}

	merged := *subject
	merged.Providers = make(map[string]string, len(subject.Providers)+1)
	for name, id := range subject.Providers {
		merged.Providers[name] = id
	}
	merged.Providers[assertion.Provider] = assertion.ProviderID

	s.publishMergeEvents(ctx, &merged, assertion, now)

	return &RedeemMergeResult{
		Subject:    &merged,
		Provider:   assertion.Provider,
		ProviderID: assertion.ProviderID,
	}, nil
}

func (s *MergeService) verifyToken(token string) (*domain.MergeAssertion, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMergeTokenInvalid
	}

	assertion, err := s.signer.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrMergeTokenExpired):
			return nil, ErrMergeTokenExpired
		case errors.Is(err, security.ErrMergeTokenInvalid):
			return nil, ErrMergeTokenInvalid
		}
		return nil, fmt.Errorf("verify merge token: %w", err)
	}

	if assertion.Expired(s.now().UTC()) {
		return nil, ErrMergeTokenExpired
	}

	return assertion, nil
}

func (s *MergeService) publishMergeEvents(ctx context.Context, subject *domain.Subject, assertion *domain.MergeAssertion, completedAt time.Time) {
	if s.events == nil {
		return
	}

	linked := domain.ProviderLinkedEvent{
		EventID:    uuid.NewString(),
		SubjectID:  subject.ID,
		Provider:   assertion.Provider,
		ProviderID: assertion.ProviderID,
		LinkedAt:   completedAt,
		ViaMerge:   true,
	}
	if err := s.events.PublishProviderLinked(ctx, linked); err != nil {
		s.logger.Warn("publish provider linked event failed", zap.String("subject_id", subject.ID), zap.Error(err))
	}

	completed := domain.MergeCompletedEvent{
		EventID:     uuid.NewString(),
		SubjectID:   subject.ID,
		Provider:    assertion.Provider,
		ProviderID:  assertion.ProviderID,
		CompletedAt: completedAt,
	}
	if err := s.events.PublishMergeCompleted(ctx, completed); err != nil {
		s.logger.Warn("publish merge completed event failed", zap.String("subject_id", subject.ID), zap.Error(err))
	}
}
