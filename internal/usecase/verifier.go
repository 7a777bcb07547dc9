package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

// CredentialVerifier validates a presented credential against the subject's
// stored material. Every failure that could reveal account existence is
// reported as ErrInvalidCredential.
type CredentialVerifier struct {
	subjects port.SubjectRepository
	hasher   port.PasswordHasher
	codes    *CodeService
	logger   *zap.Logger
}

// NewCredentialVerifier constructs a CredentialVerifier.
func NewCredentialVerifier(subjects port.SubjectRepository, hasher port.PasswordHasher, codes *CodeService, logger *zap.Logger) *CredentialVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CredentialVerifier{
		subjects: subjects,
		hasher:   hasher,
		codes:    codes,
		logger:   logger,
	}
}

// VerifyPassword checks the presented password. An unknown subject and a
// wrong password both yield ErrInvalidCredential; only ErrNoPasswordSet is
// distinguished, since callers must offer the OTP path for provider-only
// accounts.
func (v *CredentialVerifier) VerifyPassword(ctx context.Context, subjectID, password string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return ErrInvalidCredential
	}
	if v.subjects == nil || v.hasher == nil {
		return fmt.Errorf("credential verifier is not configured")
	}

	subject, err := v.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredential
		}
		return fmt.Errorf("lookup subject: %w", err)
	}

	if !subject.HasPassword() {
		return ErrNoPasswordSet
	}

	matches, err := v.hasher.Verify(password, *subject.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !matches {
		return ErrInvalidCredential
	}

	return nil
}

// VerifyCode delegates to the code service for the given purpose.
func (v *CredentialVerifier) VerifyCode(ctx context.Context, subjectID string, purpose domain.CodePurpose, code string) error {
	if v.codes == nil {
		return fmt.Errorf("credential verifier is not configured")
	}
	return v.codes.Verify(ctx, subjectID, purpose, code)
}

// Verify routes the credential to the password or OTP check based on method.
func (v *CredentialVerifier) Verify(ctx context.Context, subjectID string, method domain.VerificationMethod, purpose domain.CodePurpose, credential string) error {
	switch method {
	case domain.MethodPassword:
		return v.VerifyPassword(ctx, subjectID, credential)
	case domain.MethodOTP:
		return v.VerifyCode(ctx, subjectID, purpose, credential)
	default:
		return ErrUnsupportedMethod
	}
}
