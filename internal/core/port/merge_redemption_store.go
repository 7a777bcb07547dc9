package port

import (
	"context"
	"time"
)

// MergeRedemptionStore records redeemed merge token ids so a token can be
// used at most once. MarkRedeemed is an atomic set-if-absent: it returns true
// for the first caller and false for every subsequent one.
type MergeRedemptionStore interface {
	MarkRedeemed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}
