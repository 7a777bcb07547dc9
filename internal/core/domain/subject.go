package domain

import "time"

// SubjectStatus enumerates possible account states.
type SubjectStatus string

const (
	SubjectStatusActive          SubjectStatus = "active"
	SubjectStatusDeactivated     SubjectStatus = "deactivated"
	SubjectStatusPendingDeletion SubjectStatus = "pending_deletion"
	SubjectStatusDeleted         SubjectStatus = "deleted"
)

// Subject mirrors the persisted representation of an account in the subjects table.
// PasswordHash is nil for accounts created purely through a federated provider.
type Subject struct {
	ID                 string
	Email              string
	PasswordHash       *string
	PasswordAlgo       string
	Status             SubjectStatus
	Providers          map[string]string
	CreatedAt          time.Time
	LastPasswordChange *time.Time
}

// HasPassword reports whether the subject has local password credentials.
func (s Subject) HasPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// AuthMethodCount returns how many independent authentication methods the subject retains.
func (s Subject) AuthMethodCount() int {
	count := len(s.Providers)
	if s.HasPassword() {
		count++
	}
	return count
}

// HasProvider reports whether the named provider identity is linked.
func (s Subject) HasProvider(provider string) bool {
	_, ok := s.Providers[provider]
	return ok
}
