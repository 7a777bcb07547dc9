package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// GatewayAuth validates the signed subject assertion forwarded by the API
// gateway. The gateway authenticates the session; this service only trusts
// the HMAC-signed claim naming which subject is acting.
type GatewayAuth struct {
	secret []byte
	now    func() time.Time
}

// NewGatewayAuth constructs the middleware helper for the shared gateway secret.
func NewGatewayAuth(secret string) *GatewayAuth {
	return &GatewayAuth{
		secret: []byte(strings.TrimSpace(secret)),
		now:    time.Now,
	}
}

// WithClock overrides the clock used for token freshness, used in tests.
func (a *GatewayAuth) WithClock(clock func() time.Time) {
	if clock != nil {
		a.now = clock
	}
}

// RequireSubject validates the Authorization header and stores the acting
// subject ID in the request context.
func (a *GatewayAuth) RequireSubject() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a == nil || len(a.secret) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				newErrorResponse(c, "gateway authentication not configured"))
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing gateway assertion"))
			return
		}

		subjectID, err := a.parseAssertion(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid gateway assertion"))
			return
		}

		c.Set(SubjectIDKey, subjectID)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.SubjectID = subjectID
		}

		c.Next()
	}
}

func (a *GatewayAuth) parseAssertion(raw string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return a.now().UTC() }),
		jwt.WithExpirationRequired(),
	)

	var claims jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	subjectID := strings.TrimSpace(claims.Subject)
	if subjectID == "" {
		return "", jwt.ErrTokenInvalidSubject
	}

	return subjectID, nil
}

// GetAuthenticatedSubjectID retrieves the subject ID from context (helper for handlers)
func GetAuthenticatedSubjectID(c *gin.Context) (string, bool) {
	subjectID, exists := c.Get(SubjectIDKey)
	if !exists {
		return "", false
	}

	if id, ok := subjectID.(string); ok {
		return id, true
	}

	return "", false
}
