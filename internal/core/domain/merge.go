package domain

import "time"

// MergeAssertion is the verified payload of a signed merge token: email E
// already owns an account, and a sign-in via the candidate provider claims
// the same email. The token itself is opaque to clients; only what the
// signer's Verify returns is trusted.
type MergeAssertion struct {
	TokenID    string
	Email      string
	Provider   string
	ProviderID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the assertion is past its TTL at the reference time.
func (a MergeAssertion) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
