package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/lead-platform-stepup/internal/transport/http/middleware"
	"github.com/arklim/lead-platform-stepup/internal/usecase"
)

// AccountHandler exposes the guarded account deletion flow. Deactivation,
// which the client should offer as the lighter alternative, goes through the
// generic challenge endpoints.
type AccountHandler struct {
	deletions *usecase.DeletionService
}

func NewAccountHandler(deletions *usecase.DeletionService) *AccountHandler {
	return &AccountHandler{deletions: deletions}
}

// RegisterRoutes wires the account endpoints onto the group.
func (h *AccountHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/delete/request", h.RequestDeletion)
	group.POST("/delete/verify", h.VerifyDeletionCode)
	group.POST("/delete/confirm", h.ConfirmDeletion)
	group.POST("/delete/cancel", h.CancelDeletion)
}

// RequestDeletion godoc
// @Summary Stage an account deletion
// @Description Sends an account-deletion code and stages the request. Clients should offer deactivation first.
// @Tags Account
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Success 201 {object} DeletionRequestResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/account/delete/request [post]
func (h *AccountHandler) RequestDeletion(c *gin.Context) {
	if h.deletions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "account handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	result, err := h.deletions.Request(c.Request.Context(), subjectID, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		var rateErr *usecase.RateLimitExceededError
		if errors.As(err, &rateErr) {
			respondRateLimitExceeded(c, rateErr)
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSubjectNotFound, Status: http.StatusNotFound, Message: "subject not found"},
		}, http.StatusInternalServerError, "failed to request deletion")
		return
	}

	c.JSON(http.StatusCreated, DeletionRequestResponse{
		RequestID: result.RequestID,
		State:     string(result.State),
		Delivery: &CodeDelivery{
			MaskedDestination: result.MaskedDestination,
			ExpiresAt:         result.CodeExpiresAt,
			Delivered:         result.Delivered,
		},
		DeactivationOffered: true,
	})
}

// VerifyDeletionCode godoc
// @Summary Verify the account-deletion code
// @Description Advances the staged deletion after the emailed code checks out. Nothing is deleted yet.
// @Tags Account
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Param request body DeletionVerifyPayload true "Deletion code"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/account/delete/verify [post]
func (h *AccountHandler) VerifyDeletionCode(c *gin.Context) {
	if h.deletions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "account handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req DeletionVerifyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	if err := h.deletions.VerifyOtp(c.Request.Context(), subjectID, req.Code); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrDeletionNotFound, Status: http.StatusNotFound, Message: "no staged deletion"},
			{Err: usecase.ErrDeletionStateInvalid, Status: http.StatusConflict, Message: "deletion not awaiting a code"},
			{Err: usecase.ErrInvalidCredential, Status: http.StatusUnauthorized, Message: "invalid code"},
			{Err: usecase.ErrCodeExpired, Status: http.StatusGone, Message: "code expired"},
			{Err: usecase.ErrCodeAlreadyUsed, Status: http.StatusConflict, Message: "code already used"},
		}, http.StatusInternalServerError, "failed to verify deletion code")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "code verified"})
}

// ConfirmDeletion godoc
// @Summary Finalize the account deletion
// @Description Requires the exact confirmation phrase. Exhausted retries force a fresh code.
// @Tags Account
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Param request body DeletionConfirmPayload true "Confirmation phrase"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/account/delete/confirm [post]
func (h *AccountHandler) ConfirmDeletion(c *gin.Context) {
	if h.deletions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "account handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req DeletionConfirmPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirmation payload"))
		return
	}

	if err := h.deletions.Confirm(c.Request.Context(), subjectID, req.Phrase); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrDeletionNotFound, Status: http.StatusNotFound, Message: "no staged deletion"},
			{Err: usecase.ErrDeletionStateInvalid, Status: http.StatusConflict, Message: "deletion code not verified yet"},
			{Err: usecase.ErrPhraseMismatch, Status: http.StatusUnprocessableEntity, Message: "confirmation phrase mismatch"},
			{Err: usecase.ErrPhraseAttemptsExhausted, Status: http.StatusUnprocessableEntity, Message: "confirmation retries exhausted, a new code was sent"},
			{Err: usecase.ErrSubjectNotFound, Status: http.StatusNotFound, Message: "subject not found"},
		}, http.StatusInternalServerError, "failed to confirm deletion")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account deleted"})
}

// CancelDeletion godoc
// @Summary Abandon the staged deletion
// @Description Cancels the staged deletion and restores the subject to active.
// @Tags Account
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/account/delete/cancel [post]
func (h *AccountHandler) CancelDeletion(c *gin.Context) {
	if h.deletions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "account handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	if err := h.deletions.Cancel(c.Request.Context(), subjectID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrDeletionNotFound, Status: http.StatusNotFound, Message: "no staged deletion"},
			{Err: usecase.ErrSubjectNotFound, Status: http.StatusNotFound, Message: "subject not found"},
		}, http.StatusInternalServerError, "failed to cancel deletion")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "deletion cancelled"})
}
