package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness information.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CodeDelivery describes the delivery outcome of an issued one-time code.
type CodeDelivery struct {
	MaskedDestination string    `json:"masked_destination"`
	ExpiresAt         time.Time `json:"expires_at"`
	Delivered         bool      `json:"delivered"`
}

// ChallengeRequestPayload defines the payload to open a sensitive-action challenge.
type ChallengeRequestPayload struct {
	Action      string `json:"action" binding:"required"`
	Method      string `json:"method" binding:"required"`
	Provider    string `json:"provider"`
	ProviderID  string `json:"provider_id"`
	NewPassword string `json:"new_password"`
}

// ChallengeResponse describes an opened challenge.
type ChallengeResponse struct {
	ChallengeID string        `json:"challenge_id"`
	Action      string        `json:"action"`
	Method      string        `json:"method"`
	State       string        `json:"state"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Delivery    *CodeDelivery `json:"delivery,omitempty"`
}

// ChallengeVerifyPayload carries the credential authorizing a pending action.
type ChallengeVerifyPayload struct {
	Action     string `json:"action" binding:"required"`
	Credential string `json:"credential" binding:"required"`
}

// ChallengeVerifyResponse reports an executed action.
type ChallengeVerifyResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Action      string    `json:"action"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// ChallengeCancelPayload names the challenge to abort.
type ChallengeCancelPayload struct {
	Action string `json:"action" binding:"required"`
}

// PasswordChangeInitiatePayload starts the two-phase password change.
type PasswordChangeInitiatePayload struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// PasswordChangeConfirmPayload finishes the password change with the emailed code.
type PasswordChangeConfirmPayload struct {
	Code string `json:"code" binding:"required"`
}

// DeletionRequestResponse describes a staged account deletion.
type DeletionRequestResponse struct {
	RequestID string        `json:"request_id"`
	State     string        `json:"state"`
	Delivery  *CodeDelivery `json:"delivery,omitempty"`
	// Deactivation is the lighter alternative the client should offer first.
	DeactivationOffered bool `json:"deactivation_offered"`
}

// DeletionVerifyPayload carries the account-deletion code.
type DeletionVerifyPayload struct {
	Code string `json:"code" binding:"required"`
}

// DeletionConfirmPayload carries the typed confirmation phrase.
type DeletionConfirmPayload struct {
	Phrase string `json:"phrase" binding:"required"`
}

// MergeIssuePayload reports an email collision detected on the federated
// sign-in callback.
type MergeIssuePayload struct {
	Email      string `json:"email" binding:"required"`
	Provider   string `json:"provider" binding:"required"`
	ProviderID string `json:"provider_id" binding:"required"`
}

// MergeIssueResponse carries the signed merge token for the client to present.
type MergeIssueResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MergeCodeRequestPayload asks for a link-verification code for a merge token.
type MergeCodeRequestPayload struct {
	Token string `json:"token" binding:"required"`
}

// MergeRedeemPayload redeems a merge token with a proving credential.
type MergeRedeemPayload struct {
	Token      string `json:"token" binding:"required"`
	Method     string `json:"method" binding:"required"`
	Credential string `json:"credential" binding:"required"`
}

// SubjectSummary describes a minimal view of a subject returned by the API.
type SubjectSummary struct {
	ID        string               `json:"id"`
	Email     string               `json:"email"`
	Status    domain.SubjectStatus `json:"status"`
	Providers map[string]string    `json:"providers,omitempty"`
}

// MergeRedeemResponse reports a completed identity merge.
type MergeRedeemResponse struct {
	Subject    SubjectSummary `json:"subject"`
	Provider   string         `json:"provider"`
	ProviderID string         `json:"provider_id"`
}
