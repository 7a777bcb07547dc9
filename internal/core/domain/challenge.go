package domain

import "time"

// ActionType names a sensitive account action guarded by step-up verification.
type ActionType string

const (
	ActionDeactivate     ActionType = "deactivate"
	ActionDelete         ActionType = "delete"
	ActionUnlinkProvider ActionType = "unlink_provider"
	ActionLinkProvider   ActionType = "link_provider"
	ActionSetPassword    ActionType = "set_password"
	ActionChangePassword ActionType = "change_password"
)

// Valid reports whether the action is one of the closed set.
func (a ActionType) Valid() bool {
	switch a {
	case ActionDeactivate, ActionDelete, ActionUnlinkProvider, ActionLinkProvider,
		ActionSetPassword, ActionChangePassword:
		return true
	}
	return false
}

// CodePurpose maps an action to the one-time code purpose used for its OTP challenge.
func (a ActionType) CodePurpose() CodePurpose {
	switch a {
	case ActionSetPassword:
		return CodePurposeSetPassword
	case ActionChangePassword:
		return CodePurposeChangePassword
	case ActionDelete:
		return CodePurposeAccountDeletion
	case ActionLinkProvider:
		return CodePurposeLinkVerification
	default:
		return CodePurposeSecurity
	}
}

// VerificationMethod selects how the subject proves credential possession.
type VerificationMethod string

const (
	MethodPassword VerificationMethod = "password"
	MethodOTP      VerificationMethod = "otp"
)

// Valid reports whether the method is one of the closed set.
func (m VerificationMethod) Valid() bool {
	return m == MethodPassword || m == MethodOTP
}

// ChallengeState tracks an in-flight sensitive action.
type ChallengeState string

const (
	ChallengeRequested ChallengeState = "requested"
	ChallengeIssued    ChallengeState = "challenge_issued"
	ChallengeVerified  ChallengeState = "verified"
	ChallengeExecuted  ChallengeState = "executed"
	ChallengeExpired   ChallengeState = "expired"
	ChallengeCancelled ChallengeState = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s ChallengeState) Terminal() bool {
	return s == ChallengeExecuted || s == ChallengeExpired || s == ChallengeCancelled
}

// ChallengePayload carries action-specific parameters. NewPasswordHash is held
// only while the challenge is live and discarded on any terminal state.
type ChallengePayload struct {
	Provider        string `json:"provider,omitempty"`
	ProviderID      string `json:"provider_id,omitempty"`
	NewPasswordHash string `json:"new_password_hash,omitempty"`
}

// ActionChallenge represents one in-flight sensitive action for a subject.
// Exactly one live challenge exists per (subject, action); a second request
// supersedes the first.
type ActionChallenge struct {
	ID        string
	SubjectID string
	Action    ActionType
	Method    VerificationMethod
	State     ChallengeState
	Payload   ChallengePayload
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the challenge TTL elapsed at the reference time.
func (c ActionChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
