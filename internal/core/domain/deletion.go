package domain

import "time"

// DeletionConfirmationPhrase must be typed exactly to finalize account deletion.
// It is fixed rather than user-chosen to prevent casual mistakes.
const DeletionConfirmationPhrase = "i_want_delete_my_account"

// MaxPhraseAttempts bounds confirmation phrase retries before a fresh OTP is forced.
const MaxPhraseAttempts = 3

// DeletionState tracks the staged account deletion flow.
type DeletionState string

const (
	DeletionOtpSent     DeletionState = "otp_sent"
	DeletionOtpVerified DeletionState = "otp_verified"
	DeletionConfirmed   DeletionState = "confirmed"
	DeletionCancelled   DeletionState = "cancelled"
)

// Terminal reports whether the deletion flow reached a final state.
func (s DeletionState) Terminal() bool {
	return s == DeletionConfirmed || s == DeletionCancelled
}

// DeletionRequest represents one staged account deletion. The terminal effect
// is subject status Deleted plus a purge signal to the external collaborator.
type DeletionRequest struct {
	ID             string
	SubjectID      string
	State          DeletionState
	OtpConsumed    bool
	PhraseAttempts int
	RequestedAt    time.Time
	ConfirmedAt    *time.Time
}
