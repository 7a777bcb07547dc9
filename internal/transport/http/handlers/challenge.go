package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/transport/http/middleware"
	"github.com/arklim/lead-platform-stepup/internal/usecase"
)

// ChallengeHandler exposes the generic sensitive-action endpoints.
type ChallengeHandler struct {
	challenges *usecase.ChallengeService
}

func NewChallengeHandler(challenges *usecase.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges}
}

// RegisterRoutes wires the challenge endpoints onto the group.
func (h *ChallengeHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.Request)
	group.POST("/verify", h.Verify)
	group.POST("/cancel", h.Cancel)
}

// Request godoc
// @Summary Open a sensitive-action challenge
// @Description Starts a challenge for the named action. With the otp method a code is sent immediately.
// @Tags Challenges
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Param request body ChallengeRequestPayload true "Challenge request"
// @Success 201 {object} ChallengeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/challenges [post]
func (h *ChallengeHandler) Request(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "challenge handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req ChallengeRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid challenge payload"))
		return
	}

	input := usecase.RequestChallengeInput{
		SubjectID:   subjectID,
		Action:      domain.ActionType(strings.TrimSpace(req.Action)),
		Method:      domain.VerificationMethod(strings.TrimSpace(req.Method)),
		Provider:    req.Provider,
		ProviderID:  req.ProviderID,
		NewPassword: req.NewPassword,
		IP:          c.ClientIP(),
		UserAgent:   c.GetHeader("User-Agent"),
	}

	result, err := h.challenges.Request(c.Request.Context(), input)
	if err != nil {
		var rateErr *usecase.RateLimitExceededError
		if errors.As(err, &rateErr) {
			respondRateLimitExceeded(c, rateErr)
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUnsupportedAction, Status: http.StatusBadRequest, Message: "unsupported action"},
			{Err: usecase.ErrUnsupportedMethod, Status: http.StatusBadRequest, Message: "unsupported verification method"},
			{Err: usecase.ErrCurrentPasswordRequired, Status: http.StatusBadRequest, Message: "use the password change flow"},
			{Err: usecase.ErrSubjectNotFound, Status: http.StatusNotFound, Message: "subject not found"},
			{Err: usecase.ErrNoPasswordSet, Status: http.StatusConflict, Message: "no password set, use the otp method"},
			{Err: usecase.ErrPasswordAlreadySet, Status: http.StatusConflict, Message: "password already set"},
			{Err: usecase.ErrNewPasswordInvalid, Status: http.StatusBadRequest, Message: "new password is invalid"},
			{Err: usecase.ErrProviderNotLinked, Status: http.StatusConflict, Message: "provider is not linked"},
			{Err: usecase.ErrProviderAlreadyLinked, Status: http.StatusConflict, Message: "provider is already linked"},
		}, http.StatusInternalServerError, "failed to open challenge")
		return
	}

	c.JSON(http.StatusCreated, challengeResponse(result))
}

// Verify godoc
// @Summary Verify and execute a pending challenge
// @Description Validates the credential for the live challenge and executes the action on success.
// @Tags Challenges
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Param request body ChallengeVerifyPayload true "Challenge verification"
// @Success 200 {object} ChallengeVerifyResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/challenges/verify [post]
func (h *ChallengeHandler) Verify(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "challenge handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req ChallengeVerifyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	input := usecase.VerifyChallengeInput{
		SubjectID:  subjectID,
		Action:     domain.ActionType(strings.TrimSpace(req.Action)),
		Credential: req.Credential,
		IP:         c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	}

	result, err := h.challenges.Verify(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, verifyErrorCases(), http.StatusInternalServerError, "failed to verify challenge")
		return
	}

	c.JSON(http.StatusOK, ChallengeVerifyResponse{
		ChallengeID: result.ChallengeID,
		Action:      string(result.Action),
		ExecutedAt:  result.ExecutedAt,
	})
}

// Cancel godoc
// @Summary Cancel a pending challenge
// @Description Aborts the live challenge for the named action.
// @Tags Challenges
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer gateway assertion"
// @Param request body ChallengeCancelPayload true "Challenge cancellation"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/challenges/cancel [post]
func (h *ChallengeHandler) Cancel(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "challenge handler not fully configured"))
		return
	}

	subjectID, ok := middleware.GetAuthenticatedSubjectID(c)
	if !ok || subjectID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req ChallengeCancelPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid cancellation payload"))
		return
	}

	err := h.challenges.Cancel(c.Request.Context(), subjectID, domain.ActionType(strings.TrimSpace(req.Action)))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUnsupportedAction, Status: http.StatusBadRequest, Message: "unsupported action"},
			{Err: usecase.ErrChallengeNotFound, Status: http.StatusNotFound, Message: "no live challenge for action"},
		}, http.StatusInternalServerError, "failed to cancel challenge")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "challenge cancelled"})
}

func challengeResponse(result *usecase.RequestChallengeResult) ChallengeResponse {
	resp := ChallengeResponse{
		ChallengeID: result.ChallengeID,
		Action:      string(result.Action),
		Method:      string(result.Method),
		State:       string(result.State),
		ExpiresAt:   result.ExpiresAt,
	}
	if result.Delivery != nil {
		resp.Delivery = &CodeDelivery{
			MaskedDestination: result.Delivery.MaskedDestination,
			ExpiresAt:         result.Delivery.ExpiresAt,
			Delivered:         result.Delivery.Delivered,
		}
	}
	return resp
}

func verifyErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrUnsupportedAction, Status: http.StatusBadRequest, Message: "unsupported action"},
		{Err: usecase.ErrChallengeNotFound, Status: http.StatusNotFound, Message: "no live challenge for action"},
		{Err: usecase.ErrChallengeExpired, Status: http.StatusGone, Message: "challenge expired"},
		{Err: usecase.ErrUnauthorized, Status: http.StatusForbidden, Message: "challenge belongs to another subject"},
		{Err: usecase.ErrInvalidCredential, Status: http.StatusUnauthorized, Message: "invalid credential"},
		{Err: usecase.ErrCodeExpired, Status: http.StatusGone, Message: "code expired"},
		{Err: usecase.ErrCodeAlreadyUsed, Status: http.StatusConflict, Message: "code already used"},
		{Err: usecase.ErrNoPasswordSet, Status: http.StatusConflict, Message: "no password set, use the otp method"},
		{Err: usecase.ErrLastCredentialRemoval, Status: http.StatusConflict, Message: "cannot remove the last authentication method"},
		{Err: usecase.ErrProviderNotLinked, Status: http.StatusConflict, Message: "provider is not linked"},
		{Err: usecase.ErrProviderAlreadyLinked, Status: http.StatusConflict, Message: "provider is already linked"},
		{Err: usecase.ErrSubjectNotFound, Status: http.StatusNotFound, Message: "subject not found"},
	}
}
