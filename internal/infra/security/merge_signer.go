package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
)

// ErrMergeTokenInvalid indicates the token failed signature or structural validation.
var ErrMergeTokenInvalid = errors.New("merge token invalid")

// ErrMergeTokenExpired indicates the token is past its expiry.
var ErrMergeTokenExpired = errors.New("merge token expired")

type mergeClaims struct {
	Email      string `json:"email"`
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id"`
	jwt.RegisteredClaims
}

// MergeTokenSigner signs and verifies compact merge tokens with HMAC-SHA256.
type MergeTokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewMergeTokenSigner constructs a signer for the provided shared secret and TTL.
func NewMergeTokenSigner(secret string, ttl time.Duration) (*MergeTokenSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("merge signing secret is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &MergeTokenSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime applied to signed assertions.
func (s *MergeTokenSigner) TTL() time.Duration {
	return s.ttl
}

// WithClock overrides the internal clock, used in tests.
func (s *MergeTokenSigner) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Sign produces a compact signed token for the assertion. A zero TokenID,
// IssuedAt, or ExpiresAt is filled from the signer's clock and TTL.
func (s *MergeTokenSigner) Sign(assertion domain.MergeAssertion) (string, error) {
	if strings.TrimSpace(assertion.Email) == "" {
		return "", fmt.Errorf("assertion email is required")
	}
	if strings.TrimSpace(assertion.Provider) == "" || strings.TrimSpace(assertion.ProviderID) == "" {
		return "", fmt.Errorf("assertion provider identity is required")
	}

	now := s.now().UTC()
	issuedAt := assertion.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = now
	}
	expiresAt := assertion.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = issuedAt.Add(s.ttl)
	}
	tokenID := strings.TrimSpace(assertion.TokenID)
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	claims := mergeClaims{
		Email:      assertion.Email,
		Provider:   assertion.Provider,
		ProviderID: assertion.ProviderID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   assertion.Email,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign merge token: %w", err)
	}

	return signed, nil
}

// Verify validates signature and freshness and returns the embedded assertion.
func (s *MergeTokenSigner) Verify(raw string) (*domain.MergeAssertion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMergeTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)

	var claims mergeClaims
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrMergeTokenExpired
		}
		return nil, ErrMergeTokenInvalid
	}

	if claims.ID == "" || claims.Email == "" || claims.Provider == "" || claims.ProviderID == "" {
		return nil, ErrMergeTokenInvalid
	}

	assertion := &domain.MergeAssertion{
		TokenID:    claims.ID,
		Email:      claims.Email,
		Provider:   claims.Provider,
		ProviderID: claims.ProviderID,
	}
	if claims.IssuedAt != nil {
		assertion.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		assertion.ExpiresAt = claims.ExpiresAt.Time
	}

	return assertion, nil
}

var _ port.MergeTokenSigner = (*MergeTokenSigner)(nil)
