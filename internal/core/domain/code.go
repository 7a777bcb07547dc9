package domain

import "time"

// CodePurpose scopes a one-time code to the flow that requested it.
type CodePurpose string

const (
	CodePurposeSecurity         CodePurpose = "generic_security"
	CodePurposeSetPassword      CodePurpose = "set_password"
	CodePurposeChangePassword   CodePurpose = "change_password"
	CodePurposeAccountDeletion  CodePurpose = "account_deletion"
	CodePurposeLinkVerification CodePurpose = "link_verification"
)

// Valid reports whether the purpose is one of the closed set.
func (p CodePurpose) Valid() bool {
	switch p {
	case CodePurposeSecurity, CodePurposeSetPassword, CodePurposeChangePassword,
		CodePurposeAccountDeletion, CodePurposeLinkVerification:
		return true
	}
	return false
}

// CodeLength is the number of digits in an issued one-time code.
const CodeLength = 6

// MaxCodeAttempts bounds failed verifications before a stored code is invalidated.
const MaxCodeAttempts = 5

// OneTimeCode is a single-use numeric credential bound to (subject, purpose).
// At most one unconsumed, unexpired code exists per pair; issuing a new one
// supersedes the previous.
type OneTimeCode struct {
	ID          string
	SubjectID   string
	Purpose     CodePurpose
	Destination string
	Code        string
	Attempts    int
	IssuedAt    time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Consumed reports whether the code has already been redeemed.
func (c OneTimeCode) Consumed() bool {
	return c.ConsumedAt != nil
}

// Expired reports whether the code is past its TTL at the reference time.
func (c OneTimeCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
