package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/infra/security"
)

type mergeFixture struct {
	subjects *subjectRepoStub
	notifier *notifierStub
	events   *eventRecorderStub
	svc      *MergeService
	clock    *time.Time
}

func newMergeFixture(t *testing.T, subjects ...domain.Subject) *mergeFixture {
	t.Helper()

	repo := newSubjectRepoStub(subjects...)
	notifier := &notifierStub{}
	events := &eventRecorderStub{}

	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	signer, err := security.NewMergeTokenSigner("merge-test-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("init signer: %v", err)
	}
	signer.WithClock(clock)

	codes := NewCodeService(nil, repo, newCodeStoreStub(), nil, notifier, events, nil)
	codes.WithClock(clock)

	verifier := NewCredentialVerifier(repo, hasherStub{}, codes, nil)

	svc := NewMergeService(repo, signer, newRedemptionStoreStub(), verifier, codes, events, nil)
	svc.WithClock(clock)

	return &mergeFixture{
		subjects: repo,
		notifier: notifier,
		events:   events,
		svc:      svc,
		clock:    &current,
	}
}

func TestMergeIssueToken(t *testing.T) {
	fx := newMergeFixture(t, domain.Subject{
		ID:           "sub-1",
		Email:        "person@example.com",
		PasswordHash: hashed("Orig1nal-harbour-view"),
	})

	result, err := fx.svc.IssueToken(context.Background(), IssueMergeTokenInput{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected a signed token")
	}
	if !result.ExpiresAt.After(*fx.clock) {
		t.Fatalf("expected future expiry, got %v", result.ExpiresAt)
	}
}

func TestMergeIssueTokenUnknownEmail(t *testing.T) {
	fx := newMergeFixture(t)

	_, err := fx.svc.IssueToken(context.Background(), IssueMergeTokenInput{
		Email:      "nobody@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestMergeIssueTokenProviderAlreadyLinked(t *testing.T) {
	fx := newMergeFixture(t, domain.Subject{
		ID:        "sub-1",
		Email:     "person@example.com",
		Providers: map[string]string{"google": "g-1"},
	})

	_, err := fx.svc.IssueToken(context.Background(), IssueMergeTokenInput{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if !errors.Is(err, ErrProviderAlreadyLinked) {
		t.Fatalf("expected ErrProviderAlreadyLinked, got %v", err)
	}
}

func TestMergeRedeemWithPassword(t *testing.T) {
	fx := newMergeFixture(t, domain.Subject{
		ID:           "sub-1",
		Email:        "person@example.com",
		PasswordHash: hashed("Orig1nal-harbour-view"),
	})

	issued, err := fx.svc.IssueToken(context.Background(), IssueMergeTokenInput{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	result, err := fx.svc.Redeem(context.Background(), RedeemMergeInput{
		Token:      issued.Token,
		Method:     domain.MethodPassword,
		Credential: "Orig1nal-harbour-view",
	})
	if err != nil {
		t.Fatalf("redeem token: %v", err)
	}
	if result.Provider != "google" || result.ProviderID != "g-1" {
		t.Fatalf("unexpected linked identity %s/%s", result.Provider, result.ProviderID)
	}
	if !result.Subject.HasProvider("google") {
		t.Fatal("expected merged subject to carry the new provider")
	}

	subject, _ := fx.subjects.GetByID(context.Background(), "sub-1")
	if !subject.HasProvider("google") {
		t.Fatal("expected provider persisted")
	}
	if len(fx.events.providerLinked) != 1 || !fx.events.providerLinked[0].ViaMerge {
		t.Fatal("expected provider linked event flagged as merge")
	}
	if len(fx.events.mergeCompleted) != 1 {
		t.Fatal("expected merge completed event")
	}
}

func TestMergeRedeemWithOtp(t *testing.T) {
	fx := newMergeFixture(t, domain.Subject{
		ID:        "sub-1",
		Email:     "person@example.com",
		Providers: map[string]string{"github": "gh-9"},
	})

	issued, err := fx.svc.IssueToken(context.Background(), IssueMergeTokenInput{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := fx.svc.RequestCode(context.Background(), issued.Token); err != nil {
		t.Fatalf("request code: %v", err)
	}
	if fx.notifier.lastDst != "person@example.com" {
		t.Fatalf("code must go to the token email, got %s", fx.notifier.lastDst)
	}

	if _, err := fx.svc.Redeem(context.Background(), RedeemMergeInput{
		Token:      issued.Token,
		Method:     domain.MethodOTP,
		Credential: fx.notifier.lastCode(),
	}); err != nil {
		t.Fatalf("redeem token: %v", err)
	}
}

func TestMergeRedeemTwice(t *testing.T) {
	fx := newMergeFixture(t, domain.Subject{
		ID:           "sub-1",
		Email:        "person@example.com",
		PasswordHash: hashed("Orig1nal-harbour-view"),
	})

	issued, err := fx.svc.IssueToken(context.Background(), IssueMergeTokenInput{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := fx.svc.Redeem(context.Background(), RedeemMergeInput{
		Token:      issued.Token,
		Method:     domain.MethodPassword,
		Credential: "Orig1nal-harbour-view",
	}); err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	if _, err := fx.svc.Redeem(context.Background(), RedeemMergeInput{
		Token:      issued.Token,
		Method:     domain.MethodPassword,
		Credential: "Orig1nal-harbour-view",
	}); !errors.Is(err, ErrMergeTokenUsed) {
		t.Fatalf("expected ErrMergeTokenUsed, got %v", err)
	}
}

func TestMergeFailedCredentialBurnsToken(t *testing.T) {
	fx := newMergeFixture(t, domain.Subject{
		ID:           "sub-1",
		Email:        "person@example.com",
		PasswordHash: hashed("Orig1nal-harbour-view"),
	})

	issued, err := fx.svc.IssueToken(context.Background(), IssueMergeTokenInput{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := fx.svc.Redeem(context.Background(), RedeemMergeInput{
		Token:      issued.Token,
		Method:     domain.MethodPassword,
		Credential: "wrong",
	}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}

	// Even with the right credential the token is gone.
	if _, err := fx.svc.Redeem(context.Background(), RedeemMergeInput{
		Token:      issued.Token,
		Method:     domain.MethodPassword,
		Credential: "Orig1nal-harbour-view",
	}); !errors.Is(err, ErrMergeTokenUsed) {
		t.Fatalf("expected ErrMergeTokenUsed, got %v", err)
	}

	subject, _ := fx.subjects.GetByID(context.Background(), "sub-1")
	if subject.HasProvider("google") {
		t.Fatal("no provider may be linked after a failed redeem")
	}
}

func TestMergeRedeemExpiredToken(t *testing.T) {
	fx := newMergeFixture(t, domain.Subject{
		ID:           "sub-1",
		Email:        "person@example.com",
		PasswordHash: hashed("Orig1nal-harbour-view"),
	})

	issued, err := fx.svc.IssueToken(context.Background(), IssueMergeTokenInput{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	*fx.clock = fx.clock.Add(16 * time.Minute)

	if _, err := fx.svc.Redeem(context.Background(), RedeemMergeInput{
		Token:      issued.Token,
		Method:     domain.MethodPassword,
		Credential: "Orig1nal-harbour-view",
	}); !errors.Is(err, ErrMergeTokenExpired) {
		t.Fatalf("expected ErrMergeTokenExpired, got %v", err)
	}
}

func TestMergeRedeemTamperedToken(t *testing.T) {
	fx := newMergeFixture(t, domain.Subject{
		ID:           "sub-1",
		Email:        "person@example.com",
		PasswordHash: hashed("Orig1nal-harbour-view"),
	})

	if _, err := fx.svc.Redeem(context.Background(), RedeemMergeInput{
		Token:      "not-a-real-token",
		Method:     domain.MethodPassword,
		Credential: "Orig1nal-harbour-view",
	}); !errors.Is(err, ErrMergeTokenInvalid) {
		t.Fatalf("expected ErrMergeTokenInvalid, got %v", err)
	}
}
