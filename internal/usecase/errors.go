package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSubjectNotFound indicates the referenced subject does not exist.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrInvalidCredential indicates the presented password or code did not
	// match. It deliberately covers "no such code" and "unknown subject" too,
	// so callers can never distinguish those cases.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrCodeExpired indicates the one-time code is past its TTL.
	ErrCodeExpired = errors.New("one-time code expired")
	// ErrCodeAlreadyUsed indicates the one-time code was consumed before.
	ErrCodeAlreadyUsed = errors.New("one-time code already used")
	// ErrNoPasswordSet indicates the account has no local password; callers
	// must offer the OTP path instead.
	ErrNoPasswordSet = errors.New("no password set for account")
	// ErrLastCredentialRemoval indicates the action would leave the account
	// with no remaining authentication method.
	ErrLastCredentialRemoval = errors.New("cannot remove last authentication method")
	// ErrUnauthorized indicates the acting subject does not own the record.
	ErrUnauthorized = errors.New("subject is not authorized for this action")

	// ErrChallengeNotFound indicates no live challenge exists for the pair.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired indicates the challenge TTL elapsed.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrUnsupportedAction indicates the action type is outside the closed set
	// this service handles directly.
	ErrUnsupportedAction = errors.New("unsupported action type")
	// ErrUnsupportedMethod indicates the verification method is not valid.
	ErrUnsupportedMethod = errors.New("unsupported verification method")

	// ErrCurrentPasswordRequired indicates the current password must be provided.
	ErrCurrentPasswordRequired = errors.New("current password is required")
	// ErrNewPasswordInvalid indicates the proposed password fails policy checks.
	ErrNewPasswordInvalid = errors.New("new password is invalid")
	// ErrPasswordAlreadySet indicates set-password was requested for an account
	// that already has one; change-password is the right flow.
	ErrPasswordAlreadySet = errors.New("password already set")

	// ErrProviderNotLinked indicates the named provider identity is not linked.
	ErrProviderNotLinked = errors.New("provider is not linked")
	// ErrProviderAlreadyLinked indicates the provider identity is already linked.
	ErrProviderAlreadyLinked = errors.New("provider is already linked")

	// ErrMergeTokenInvalid indicates the merge token failed signature or
	// structural validation.
	ErrMergeTokenInvalid = errors.New("merge token invalid")
	// ErrMergeTokenExpired indicates the merge token is past its TTL.
	ErrMergeTokenExpired = errors.New("merge token expired")
	// ErrMergeTokenUsed indicates the merge token was redeemed before.
	ErrMergeTokenUsed = errors.New("merge token already used")

	// ErrDeletionNotFound indicates no active deletion request exists.
	ErrDeletionNotFound = errors.New("deletion request not found")
	// ErrDeletionStateInvalid indicates the deletion flow is not in the state
	// the operation requires.
	ErrDeletionStateInvalid = errors.New("deletion request in wrong state")
	// ErrPhraseMismatch indicates the typed confirmation phrase did not match.
	ErrPhraseMismatch = errors.New("confirmation phrase mismatch")
	// ErrPhraseAttemptsExhausted indicates phrase retries ran out and a fresh
	// OTP is now required.
	ErrPhraseAttemptsExhausted = errors.New("confirmation phrase attempts exhausted")
)

// RateLimitExceededError reports that a sliding-window issuance limit was hit.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

// Error implements error.
func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

func metadataCopy(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// maskDestination hides most of an email address for logs and events.
func maskDestination(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if idx := strings.Index(trimmed, "@"); idx > 0 {
		local := trimmed[:idx]
		domainPart := trimmed[idx:]
		if len(local) <= 3 {
			return "***" + domainPart
		}
		return local[:3] + "***" + domainPart
	}
	if len(trimmed) <= 3 {
		return "***"
	}
	return trimmed[:3] + "***"
}
