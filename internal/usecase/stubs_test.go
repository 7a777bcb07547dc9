package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

type subjectRepoStub struct {
	byID            map[string]domain.Subject
	statusUpdates   []domain.SubjectStatus
	removedProvider string
	updateStatusErr error
}

func newSubjectRepoStub(subjects ...domain.Subject) *subjectRepoStub {
	stub := &subjectRepoStub{byID: make(map[string]domain.Subject)}
	for _, s := range subjects {
		stub.byID[s.ID] = s
	}
	return stub
}

func (m *subjectRepoStub) GetByID(_ context.Context, id string) (*domain.Subject, error) {
	if subject, ok := m.byID[id]; ok {
		copied := subject
		copied.Providers = copyProviders(subject.Providers)
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *subjectRepoStub) GetByEmail(_ context.Context, email string) (*domain.Subject, error) {
	for _, subject := range m.byID {
		if strings.EqualFold(subject.Email, email) {
			copied := subject
			copied.Providers = copyProviders(subject.Providers)
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *subjectRepoStub) UpdateStatus(_ context.Context, id string, status domain.SubjectStatus) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	subject, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	subject.Status = status
	m.byID[id] = subject
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *subjectRepoStub) UpdatePassword(_ context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error {
	subject, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	subject.PasswordHash = &passwordHash
	subject.PasswordAlgo = passwordAlgo
	subject.LastPasswordChange = &changedAt
	m.byID[id] = subject
	return nil
}

func (m *subjectRepoStub) AddProvider(_ context.Context, id string, provider string, providerID string) error {
	subject, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if subject.Providers == nil {
		subject.Providers = make(map[string]string)
	} else {
		subject.Providers = copyProviders(subject.Providers)
	}
	subject.Providers[provider] = providerID
	m.byID[id] = subject
	return nil
}

func (m *subjectRepoStub) RemoveProvider(_ context.Context, id string, provider string) error {
	subject, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if _, linked := subject.Providers[provider]; !linked {
		return repository.ErrNotFound
	}
	subject.Providers = copyProviders(subject.Providers)
	delete(subject.Providers, provider)
	m.byID[id] = subject
	m.removedProvider = provider
	return nil
}

func copyProviders(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type codeStoreStub struct {
	codes map[string]domain.OneTimeCode
}

func newCodeStoreStub() *codeStoreStub {
	return &codeStoreStub{codes: make(map[string]domain.OneTimeCode)}
}

func codeKey(subjectID string, purpose domain.CodePurpose) string {
	return subjectID + "|" + string(purpose)
}

func (m *codeStoreStub) Save(_ context.Context, code domain.OneTimeCode, _ time.Duration) error {
	m.codes[codeKey(code.SubjectID, code.Purpose)] = code
	return nil
}

func (m *codeStoreStub) Fetch(_ context.Context, subjectID string, purpose domain.CodePurpose) (*domain.OneTimeCode, error) {
	code, ok := m.codes[codeKey(subjectID, purpose)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := code
	return &copied, nil
}

func (m *codeStoreStub) Consume(_ context.Context, subjectID string, purpose domain.CodePurpose, codeID string) error {
	key := codeKey(subjectID, purpose)
	code, ok := m.codes[key]
	if !ok || code.ID != codeID {
		return repository.ErrNotFound
	}
	if code.Consumed() {
		return repository.ErrAlreadyConsumed
	}
	now := time.Now().UTC()
	code.ConsumedAt = &now
	m.codes[key] = code
	return nil
}

func (m *codeStoreStub) IncrementAttempts(_ context.Context, subjectID string, purpose domain.CodePurpose) (int, error) {
	key := codeKey(subjectID, purpose)
	code, ok := m.codes[key]
	if !ok {
		return 0, repository.ErrNotFound
	}
	code.Attempts++
	m.codes[key] = code
	return code.Attempts, nil
}

func (m *codeStoreStub) Invalidate(_ context.Context, subjectID string, purpose domain.CodePurpose) error {
	delete(m.codes, codeKey(subjectID, purpose))
	return nil
}

type challengeStoreStub struct {
	challenges map[string]domain.ActionChallenge
}

func newChallengeStoreStub() *challengeStoreStub {
	return &challengeStoreStub{challenges: make(map[string]domain.ActionChallenge)}
}

func challengeKey(subjectID string, action domain.ActionType) string {
	return subjectID + "|" + string(action)
}

func (m *challengeStoreStub) Save(_ context.Context, challenge domain.ActionChallenge, _ time.Duration) error {
	m.challenges[challengeKey(challenge.SubjectID, challenge.Action)] = challenge
	return nil
}

func (m *challengeStoreStub) Fetch(_ context.Context, subjectID string, action domain.ActionType) (*domain.ActionChallenge, error) {
	challenge, ok := m.challenges[challengeKey(subjectID, action)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := challenge
	return &copied, nil
}

func (m *challengeStoreStub) Remove(_ context.Context, subjectID string, action domain.ActionType, challengeID string) error {
	key := challengeKey(subjectID, action)
	challenge, ok := m.challenges[key]
	if !ok || challenge.ID != challengeID {
		return repository.ErrNotFound
	}
	delete(m.challenges, key)
	return nil
}

type deletionRepoStub struct {
	requests map[string]domain.DeletionRequest
}

func newDeletionRepoStub() *deletionRepoStub {
	return &deletionRepoStub{requests: make(map[string]domain.DeletionRequest)}
}

func (m *deletionRepoStub) Create(_ context.Context, request domain.DeletionRequest) error {
	m.requests[request.ID] = request
	return nil
}

func (m *deletionRepoStub) GetActive(_ context.Context, subjectID string) (*domain.DeletionRequest, error) {
	for _, request := range m.requests {
		if request.SubjectID == subjectID && !request.State.Terminal() {
			copied := request
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *deletionRepoStub) Update(_ context.Context, request domain.DeletionRequest) error {
	if _, ok := m.requests[request.ID]; !ok {
		return repository.ErrNotFound
	}
	m.requests[request.ID] = request
	return nil
}

type redemptionStoreStub struct {
	redeemed map[string]struct{}
}

func newRedemptionStoreStub() *redemptionStoreStub {
	return &redemptionStoreStub{redeemed: make(map[string]struct{})}
}

func (m *redemptionStoreStub) MarkRedeemed(_ context.Context, tokenID string, _ time.Duration) (bool, error) {
	if _, ok := m.redeemed[tokenID]; ok {
		return false, nil
	}
	m.redeemed[tokenID] = struct{}{}
	return true, nil
}

type rateLimitStoreStub struct {
	attempts map[string][]time.Time
}

func newRateLimitStoreStub() *rateLimitStoreStub {
	return &rateLimitStoreStub{attempts: make(map[string][]time.Time)}
}

func (m *rateLimitStoreStub) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	cutoff := reference.Add(-window)
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *rateLimitStoreStub) CountAttempts(_ context.Context, identifier string, _ time.Duration, _ time.Time) (int, error) {
	return len(m.attempts[identifier]), nil
}

func (m *rateLimitStoreStub) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *rateLimitStoreStub) OldestAttempt(_ context.Context, identifier string, _ time.Duration, _ time.Time) (time.Time, bool, error) {
	attempts := m.attempts[identifier]
	if len(attempts) == 0 {
		return time.Time{}, false, nil
	}
	return attempts[0], true, nil
}

type notifierStub struct {
	sent    []string
	lastDst string
	sendErr error
}

func (m *notifierStub) Send(_ context.Context, destination string, _ domain.CodePurpose, code string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, code)
	m.lastDst = destination
	return nil
}

func (m *notifierStub) lastCode() string {
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1]
}

type eventRecorderStub struct {
	codeIssued       []domain.CodeIssuedEvent
	executed         []domain.ChallengeExecutedEvent
	passwordChanged  []domain.PasswordChangedEvent
	providerLinked   []domain.ProviderLinkedEvent
	providerUnlinked []domain.ProviderUnlinkedEvent
	deactivated      []domain.AccountDeactivatedEvent
	deleted          []domain.AccountDeletedEvent
	mergeCompleted   []domain.MergeCompletedEvent
}

func (m *eventRecorderStub) PublishCodeIssued(_ context.Context, event domain.CodeIssuedEvent) error {
	m.codeIssued = append(m.codeIssued, event)
	return nil
}

func (m *eventRecorderStub) PublishChallengeExecuted(_ context.Context, event domain.ChallengeExecutedEvent) error {
	m.executed = append(m.executed, event)
	return nil
}

func (m *eventRecorderStub) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	m.passwordChanged = append(m.passwordChanged, event)
	return nil
}

func (m *eventRecorderStub) PublishProviderLinked(_ context.Context, event domain.ProviderLinkedEvent) error {
	m.providerLinked = append(m.providerLinked, event)
	return nil
}

func (m *eventRecorderStub) PublishProviderUnlinked(_ context.Context, event domain.ProviderUnlinkedEvent) error {
	m.providerUnlinked = append(m.providerUnlinked, event)
	return nil
}

func (m *eventRecorderStub) PublishAccountDeactivated(_ context.Context, event domain.AccountDeactivatedEvent) error {
	m.deactivated = append(m.deactivated, event)
	return nil
}

func (m *eventRecorderStub) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	m.deleted = append(m.deleted, event)
	return nil
}

func (m *eventRecorderStub) PublishMergeCompleted(_ context.Context, event domain.MergeCompletedEvent) error {
	m.mergeCompleted = append(m.mergeCompleted, event)
	return nil
}

type hasherStub struct{}

func (hasherStub) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	return "hashed$" + password, nil
}

func (hasherStub) Verify(password string, encoded string) (bool, error) {
	return encoded == "hashed$"+password, nil
}

func hashed(password string) *string {
	h := fmt.Sprintf("hashed$%s", password)
	return &h
}
