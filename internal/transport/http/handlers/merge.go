package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/usecase"
)

// MergeHandler exposes identity merge issuance and redemption. Redemption
// endpoints are not behind gateway auth: the signed merge token itself names
// the subject, and the credential check inside Redeem proves ownership.
// Issuance is reserved for the authentication component and requires a
// gateway assertion.
type MergeHandler struct {
	merge *usecase.MergeService
}

func NewMergeHandler(merge *usecase.MergeService) *MergeHandler {
	return &MergeHandler{merge: merge}
}

// RegisterRoutes wires the merge endpoints onto the group. serviceAuth guards
// the issuance endpoint; the token-bearing endpoints stay open.
func (h *MergeHandler) RegisterRoutes(group *gin.RouterGroup, serviceAuth gin.HandlerFunc) {
	group.POST("/issue", serviceAuth, h.Issue)
	group.POST("/code", h.RequestCode)
	group.POST("/redeem", h.Redeem)
}

// Issue godoc
// @Summary Issue a merge token for an email collision
// @Description Signs a single-use merge token for a federated identity whose email already belongs to an existing account. Called by the authentication component.
// @Tags Merge
// @Accept json
// @Produce json
// @Param request body MergeIssuePayload true "Detected collision"
// @Success 200 {object} MergeIssueResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/merge/issue [post]
func (h *MergeHandler) Issue(c *gin.Context) {
	if h.merge == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "merge handler not fully configured"))
		return
	}

	var req MergeIssuePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid merge issue payload"))
		return
	}

	result, err := h.merge.IssueToken(c.Request.Context(), usecase.IssueMergeTokenInput{
		Email:      req.Email,
		Provider:   req.Provider,
		ProviderID: req.ProviderID,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSubjectNotFound, Status: http.StatusNotFound, Message: "no account for email"},
			{Err: usecase.ErrProviderAlreadyLinked, Status: http.StatusConflict, Message: "provider is already linked"},
		}, http.StatusInternalServerError, "failed to issue merge token")
		return
	}

	c.JSON(http.StatusOK, MergeIssueResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	})
}

// RequestCode godoc
// @Summary Request a link-verification code for a merge token
// @Description Sends a code to the address inside the verified token. Client-supplied destinations are ignored.
// @Tags Merge
// @Accept json
// @Produce json
// @Param request body MergeCodeRequestPayload true "Merge token"
// @Success 200 {object} CodeDelivery
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/merge/code [post]
func (h *MergeHandler) RequestCode(c *gin.Context) {
	if h.merge == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "merge handler not fully configured"))
		return
	}

	var req MergeCodeRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid merge payload"))
		return
	}

	result, err := h.merge.RequestCode(c.Request.Context(), req.Token)
	if err != nil {
		var rateErr *usecase.RateLimitExceededError
		if errors.As(err, &rateErr) {
			respondRateLimitExceeded(c, rateErr)
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMergeTokenInvalid, Status: http.StatusUnauthorized, Message: "merge token invalid"},
			{Err: usecase.ErrMergeTokenExpired, Status: http.StatusGone, Message: "merge token expired"},
		}, http.StatusInternalServerError, "failed to send verification code")
		return
	}

	c.JSON(http.StatusOK, CodeDelivery{
		MaskedDestination: result.MaskedDestination,
		ExpiresAt:         result.ExpiresAt,
		Delivered:         result.Delivered,
	})
}

// Redeem godoc
// @Summary Redeem a merge token
// @Description Verifies the token, marks it used, checks the credential, and links the provider identity.
// @Tags Merge
// @Accept json
// @Produce json
// @Param request body MergeRedeemPayload true "Merge redemption"
// @Success 200 {object} MergeRedeemResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/merge/redeem [post]
func (h *MergeHandler) Redeem(c *gin.Context) {
	if h.merge == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "merge handler not fully configured"))
		return
	}

	var req MergeRedeemPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid redemption payload"))
		return
	}

	input := usecase.RedeemMergeInput{
		Token:      req.Token,
		Method:     domain.VerificationMethod(strings.TrimSpace(req.Method)),
		Credential: req.Credential,
		IP:         c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	}

	result, err := h.merge.Redeem(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMergeTokenInvalid, Status: http.StatusUnauthorized, Message: "merge token invalid"},
			{Err: usecase.ErrMergeTokenExpired, Status: http.StatusGone, Message: "merge token expired"},
			{Err: usecase.ErrMergeTokenUsed, Status: http.StatusConflict, Message: "merge token already used"},
			{Err: usecase.ErrInvalidCredential, Status: http.StatusUnauthorized, Message: "invalid credential"},
			{Err: usecase.ErrCodeExpired, Status: http.StatusGone, Message: "code expired"},
			{Err: usecase.ErrCodeAlreadyUsed, Status: http.StatusConflict, Message: "code already used"},
			{Err: usecase.ErrNoPasswordSet, Status: http.StatusConflict, Message: "no password set, use the otp method"},
			{Err: usecase.ErrUnsupportedMethod, Status: http.StatusBadRequest, Message: "unsupported verification method"},
			{Err: usecase.ErrProviderAlreadyLinked, Status: http.StatusConflict, Message: "provider is already linked"},
		}, http.StatusInternalServerError, "failed to redeem merge token")
		return
	}

	subject := result.Subject
	c.JSON(http.StatusOK, MergeRedeemResponse{
		Subject: SubjectSummary{
			ID:        subject.ID,
			Email:     subject.Email,
			Status:    subject.Status,
			Providers: subject.Providers,
		},
		Provider:   result.Provider,
		ProviderID: result.ProviderID,
	})
}
