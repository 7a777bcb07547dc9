package domain

import "time"

// CodeIssuedEvent represents the payload for stepup.code.issued messages.
type CodeIssuedEvent struct {
	EventID           string
	SubjectID         string
	Purpose           CodePurpose
	MaskedDestination string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	Delivered         bool
	Metadata          map[string]any
}

// ChallengeExecutedEvent represents the payload for stepup.challenge.executed messages.
type ChallengeExecutedEvent struct {
	EventID     string
	ChallengeID string
	SubjectID   string
	Action      ActionType
	Method      VerificationMethod
	ExecutedAt  time.Time
	Metadata    map[string]any
}

// PasswordChangedEvent represents the payload for stepup.password.changed messages.
// The external session service consumes it to revoke active sessions.
type PasswordChangedEvent struct {
	EventID   string
	SubjectID string
	ChangedAt time.Time
	Reason    string
	Metadata  map[string]any
}

// ProviderLinkedEvent represents the payload for stepup.provider.linked messages.
type ProviderLinkedEvent struct {
	EventID    string
	SubjectID  string
	Provider   string
	ProviderID string
	LinkedAt   time.Time
	ViaMerge   bool
	Metadata   map[string]any
}

// ProviderUnlinkedEvent represents the payload for stepup.provider.unlinked messages.
type ProviderUnlinkedEvent struct {
	EventID    string
	SubjectID  string
	Provider   string
	UnlinkedAt time.Time
	Metadata   map[string]any
}

// AccountDeactivatedEvent represents the payload for stepup.account.deactivated messages.
type AccountDeactivatedEvent struct {
	EventID       string
	SubjectID     string
	DeactivatedAt time.Time
	Metadata      map[string]any
}

// AccountDeletedEvent represents the payload for stepup.account.deleted messages.
// It doubles as the purge signal for the data-retention collaborator.
type AccountDeletedEvent struct {
	EventID   string
	SubjectID string
	DeletedAt time.Time
	Metadata  map[string]any
}

// MergeCompletedEvent represents the payload for stepup.merge.completed messages.
type MergeCompletedEvent struct {
	EventID     string
	SubjectID   string
	Provider    string
	ProviderID  string
	CompletedAt time.Time
	Metadata    map[string]any
}
