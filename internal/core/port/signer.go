package port

import (
	"github.com/arklim/lead-platform-stepup/internal/core/domain"
)

// MergeTokenSigner issues and validates signed merge tokens. Tokens are
// opaque to everything outside Verify; callers trust only the returned
// assertion.
type MergeTokenSigner interface {
	Sign(assertion domain.MergeAssertion) (string, error)
	Verify(token string) (*domain.MergeAssertion, error)
}
