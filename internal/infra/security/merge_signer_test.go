package security

import (
	"errors"
	"testing"
	"time"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

func newTestSigner(t *testing.T, now time.Time) *MergeTokenSigner {
	t.Helper()

	signer, err := NewMergeTokenSigner("merge-test-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewMergeTokenSigner returned error: %v", err)
	}
	signer.WithClock(func() time.Time { return now })
	return signer
}

func TestMergeTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	raw, err := signer.Sign(domain.MergeAssertion{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	assertion, err := signer.Verify(raw)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	if assertion.Email != "person@example.com" || assertion.Provider != "google" || assertion.ProviderID != "g-1" {
		t.Fatalf("unexpected assertion: %+v", assertion)
	}
	if assertion.TokenID == "" {
		t.Fatal("expected generated token id")
	}
	if !assertion.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", assertion.ExpiresAt)
	}
}

func TestMergeTokenExpired(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	raw, err := signer.Sign(domain.MergeAssertion{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	signer.WithClock(func() time.Time { return now.Add(16 * time.Minute) })

	if _, err := signer.Verify(raw); !errors.Is(err, ErrMergeTokenExpired) {
		t.Fatalf("expected ErrMergeTokenExpired, got %v", err)
	}
}

func TestMergeTokenTampered(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	raw, err := signer.Sign(domain.MergeAssertion{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	tampered := raw[:len(raw)-2] + "xx"
	if _, err := signer.Verify(tampered); !errors.Is(err, ErrMergeTokenInvalid) {
		t.Fatalf("expected ErrMergeTokenInvalid, got %v", err)
	}
}

func TestMergeTokenWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	other, err := NewMergeTokenSigner("different-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewMergeTokenSigner returned error: %v", err)
	}
	other.WithClock(func() time.Time { return now })

	raw, err := other.Sign(domain.MergeAssertion{
		Email:      "person@example.com",
		Provider:   "google",
		ProviderID: "g-1",
	})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	if _, err := signer.Verify(raw); !errors.Is(err, ErrMergeTokenInvalid) {
		t.Fatalf("expected ErrMergeTokenInvalid, got %v", err)
	}
}

func TestMergeTokenRejectsIncompleteAssertion(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, now)

	if _, err := signer.Sign(domain.MergeAssertion{Provider: "google", ProviderID: "g-1"}); err == nil {
		t.Fatal("expected error for missing email")
	}

	if _, err := signer.Sign(domain.MergeAssertion{Email: "person@example.com"}); err == nil {
		t.Fatal("expected error for missing provider identity")
	}
}

func TestNewMergeTokenSignerRequiresSecret(t *testing.T) {
	if _, err := NewMergeTokenSigner("   ", time.Minute); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("GenerateNumericCode returned error: %v", err)
	}

	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}

	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("expected digits only, got %q", code)
		}
	}

	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for non-positive length")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	if !ConstantTimeEquals("483920", "483920") {
		t.Fatal("expected equal codes to match")
	}
	if ConstantTimeEquals("483920", "483921") {
		t.Fatal("expected different codes to mismatch")
	}
	if ConstantTimeEquals("483920", "48392") {
		t.Fatal("expected different lengths to mismatch")
	}
}
