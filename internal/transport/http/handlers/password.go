package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/transport/http/middleware"
	"github.com/arklim/lead-platform-stepup/internal/usecase"
)

// PasswordHandler exposes the two-phase password change endpoints. Setting a
// first password for a provider-only account goes through the generic
// challenge endpoints with the set-password action.
type PasswordHandler struct {
	challenges *usecase.ChallengeService
}

func NewPasswordHandler(challenges *usecase.ChallengeService) *PasswordHandler {
	return &PasswordHandler{challenges: challenges}
}

// RegisterRoutes wires the password endpoints onto the group.
func (h *PasswordHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/change/initiate", h.InitiateChange)
	group.POST("/change/confirm", h.ConfirmChange)
}

// InitiateChange godoc
// @Summary Start a password change
// @Description Verifies the current password and, on success, opens a challenge with a change-password code sent.
// @Tags Password
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Param request body PasswordChangeInitiatePayload true "Password change initiation"
// @Success 201 {object} ChallengeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/password/change/initiate [post]
func (h *PasswordHandler) InitiateChange(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req PasswordChangeInitiatePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password change payload"))
		return
	}

	input := usecase.InitiateChangeInput{
		SubjectID:       subjectID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		IP:              c.ClientIP(),
		UserAgent:       c.GetHeader("User-Agent"),
	}

	result, err := h.challenges.InitiateChange(c.Request.Context(), input)
	if err != nil {
		var rateErr *usecase.RateLimitExceededError
		if errors.As(err, &rateErr) {
			respondRateLimitExceeded(c, rateErr)
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrCurrentPasswordRequired, Status: http.StatusBadRequest, Message: "current password is required"},
			{Err: usecase.ErrInvalidCredential, Status: http.StatusUnauthorized, Message: "invalid credential"},
			{Err: usecase.ErrNoPasswordSet, Status: http.StatusConflict, Message: "no password set, use the set-password flow"},
			{Err: usecase.ErrNewPasswordInvalid, Status: http.StatusBadRequest, Message: "new password is invalid"},
			{Err: usecase.ErrSubjectNotFound, Status: http.StatusNotFound, Message: "subject not found"},
		}, http.StatusInternalServerError, "failed to initiate password change")
		return
	}

	c.JSON(http.StatusCreated, challengeResponse(result))
}

// ConfirmChange godoc
// @Summary Confirm a password change
// @Description Verifies the change-password code and applies the pending password.
// @Tags Password
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Param request body PasswordChangeConfirmPayload true "Password change confirmation"
// @Success 200 {object} ChallengeVerifyResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/password/change/confirm [post]
func (h *PasswordHandler) ConfirmChange(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req PasswordChangeConfirmPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirmation payload"))
		return
	}

	input := usecase.VerifyChallengeInput{
		SubjectID:  subjectID,
		Action:     domain.ActionChangePassword,
		Credential: req.Code,
		IP:         c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	}

	result, err := h.challenges.Verify(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, verifyErrorCases(), http.StatusInternalServerError, "failed to confirm password change")
		return
	}

	c.JSON(http.StatusOK, ChallengeVerifyResponse{
		ChallengeID: result.ChallengeID,
		Action:      string(result.Action),
		ExecutedAt:  result.ExecutedAt,
	})
}
