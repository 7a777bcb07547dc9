package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

type deletionFixture struct {
	subjects  *subjectRepoStub
	deletions *deletionRepoStub
	codes     *codeStoreStub
	notifier  *notifierStub
	events    *eventRecorderStub
	svc       *DeletionService
}

func newDeletionFixture(t *testing.T) *deletionFixture {
	t.Helper()

	repo := newSubjectRepoStub(domain.Subject{
		ID:           "sub-1",
		Email:        "person@example.com",
		PasswordHash: hashed("Orig1nal-harbour-view"),
		Status:       domain.SubjectStatusActive,
	})
	codeStore := newCodeStoreStub()
	notifier := &notifierStub{}
	events := &eventRecorderStub{}

	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	codes := NewCodeService(nil, repo, codeStore, nil, notifier, events, nil)
	codes.WithClock(clock)

	deletions := newDeletionRepoStub()
	svc := NewDeletionService(repo, deletions, codes, events, nil)
	svc.WithClock(clock)

	return &deletionFixture{
		subjects:  repo,
		deletions: deletions,
		codes:     codeStore,
		notifier:  notifier,
		events:    events,
		svc:       svc,
	}
}

func TestDeletionRequest(t *testing.T) {
	fx := newDeletionFixture(t)

	result, err := fx.svc.Request(context.Background(), "sub-1", "203.0.113.7", "cli")
	if err != nil {
		t.Fatalf("request deletion: %v", err)
	}
	if result.State != domain.DeletionOtpSent {
		t.Fatalf("expected otp_sent state, got %s", result.State)
	}
	if !result.Delivered {
		t.Fatal("expected code delivered")
	}

	subject, _ := fx.subjects.GetByID(context.Background(), "sub-1")
	if subject.Status != domain.SubjectStatusPendingDeletion {
		t.Fatalf("expected pending deletion status, got %s", subject.Status)
	}
}

func TestDeletionRequestSupersedesPrior(t *testing.T) {
	fx := newDeletionFixture(t)

	first, err := fx.svc.Request(context.Background(), "sub-1", "", "")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := fx.svc.Request(context.Background(), "sub-1", "", "")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if first.RequestID == second.RequestID {
		t.Fatal("expected a fresh request id")
	}

	prior := fx.deletions.requests[first.RequestID]
	if prior.State != domain.DeletionCancelled {
		t.Fatalf("expected superseded request cancelled, got %s", prior.State)
	}
}

func TestDeletionConfirmBeforeOtp(t *testing.T) {
	fx := newDeletionFixture(t)

	if _, err := fx.svc.Request(context.Background(), "sub-1", "", ""); err != nil {
		t.Fatalf("request deletion: %v", err)
	}

	if err := fx.svc.Confirm(context.Background(), "sub-1", domain.DeletionConfirmationPhrase); !errors.Is(err, ErrDeletionStateInvalid) {
		t.Fatalf("expected ErrDeletionStateInvalid, got %v", err)
	}
}

func TestDeletionFullFlow(t *testing.T) {
	fx := newDeletionFixture(t)

	if _, err := fx.svc.Request(context.Background(), "sub-1", "", ""); err != nil {
		t.Fatalf("request deletion: %v", err)
	}
	if err := fx.svc.VerifyOtp(context.Background(), "sub-1", fx.notifier.lastCode()); err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if err := fx.svc.Confirm(context.Background(), "sub-1", domain.DeletionConfirmationPhrase); err != nil {
		t.Fatalf("confirm deletion: %v", err)
	}

	subject, _ := fx.subjects.GetByID(context.Background(), "sub-1")
	if subject.Status != domain.SubjectStatusDeleted {
		t.Fatalf("expected deleted status, got %s", subject.Status)
	}
	if len(fx.events.deleted) != 1 {
		t.Fatal("expected account deleted event")
	}
}

func TestDeletionPhraseRetriesExhausted(t *testing.T) {
	fx := newDeletionFixture(t)

	if _, err := fx.svc.Request(context.Background(), "sub-1", "", ""); err != nil {
		t.Fatalf("request deletion: %v", err)
	}
	if err := fx.svc.VerifyOtp(context.Background(), "sub-1", fx.notifier.lastCode()); err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	codesSent := len(fx.notifier.sent)

	for i := 0; i < domain.MaxPhraseAttempts-1; i++ {
		if err := fx.svc.Confirm(context.Background(), "sub-1", "i want delete my account"); !errors.Is(err, ErrPhraseMismatch) {
			t.Fatalf("mismatch %d: expected ErrPhraseMismatch, got %v", i+1, err)
		}
	}

	if err := fx.svc.Confirm(context.Background(), "sub-1", "i want delete my account"); !errors.Is(err, ErrPhraseAttemptsExhausted) {
		t.Fatalf("expected ErrPhraseAttemptsExhausted, got %v", err)
	}

	// The flow dropped back to otp-sent with a fresh code.
	request, err := fx.deletions.GetActive(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("lookup request: %v", err)
	}
	if request.State != domain.DeletionOtpSent || request.PhraseAttempts != 0 {
		t.Fatalf("expected reset to otp_sent, got %s attempts=%d", request.State, request.PhraseAttempts)
	}
	if len(fx.notifier.sent) != codesSent+1 {
		t.Fatal("expected a fresh code after exhaustion")
	}

	// The correct phrase now needs the new OTP first.
	if err := fx.svc.Confirm(context.Background(), "sub-1", domain.DeletionConfirmationPhrase); !errors.Is(err, ErrDeletionStateInvalid) {
		t.Fatalf("expected ErrDeletionStateInvalid, got %v", err)
	}
	if err := fx.svc.VerifyOtp(context.Background(), "sub-1", fx.notifier.lastCode()); err != nil {
		t.Fatalf("verify fresh otp: %v", err)
	}
	if err := fx.svc.Confirm(context.Background(), "sub-1", domain.DeletionConfirmationPhrase); err != nil {
		t.Fatalf("confirm deletion: %v", err)
	}
}

func TestDeletionCancelRestoresSubject(t *testing.T) {
	fx := newDeletionFixture(t)

	if _, err := fx.svc.Request(context.Background(), "sub-1", "", ""); err != nil {
		t.Fatalf("request deletion: %v", err)
	}
	if err := fx.svc.Cancel(context.Background(), "sub-1"); err != nil {
		t.Fatalf("cancel deletion: %v", err)
	}

	subject, _ := fx.subjects.GetByID(context.Background(), "sub-1")
	if subject.Status != domain.SubjectStatusActive {
		t.Fatalf("expected active status restored, got %s", subject.Status)
	}

	if _, err := fx.codes.Fetch(context.Background(), "sub-1", domain.CodePurposeAccountDeletion); err == nil {
		t.Fatal("expected deletion code invalidated")
	}

	if err := fx.svc.Cancel(context.Background(), "sub-1"); !errors.Is(err, ErrDeletionNotFound) {
		t.Fatalf("expected ErrDeletionNotFound after cancel, got %v", err)
	}
}

func TestDeletionVerifyOtpWrongState(t *testing.T) {
	fx := newDeletionFixture(t)

	if _, err := fx.svc.Request(context.Background(), "sub-1", "", ""); err != nil {
		t.Fatalf("request deletion: %v", err)
	}
	if err := fx.svc.VerifyOtp(context.Background(), "sub-1", fx.notifier.lastCode()); err != nil {
		t.Fatalf("verify otp: %v", err)
	}

	// Already verified; a second verify is out of order.
	if err := fx.svc.VerifyOtp(context.Background(), "sub-1", fx.notifier.lastCode()); !errors.Is(err, ErrDeletionStateInvalid) {
		t.Fatalf("expected ErrDeletionStateInvalid, got %v", err)
	}
}
