package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/lead-platform-stepup/internal/core/port"
)

const defaultMergePrefix = "stepup:merge"

// MergeRedemptionRepository records redeemed merge token ids in Redis so a
// token can only ever be redeemed once.
type MergeRedemptionRepository struct {
	client *red.Client
	prefix string
}

// NewMergeRedemptionRepository constructs a redemption registry with the provided Redis client and key prefix.
func NewMergeRedemptionRepository(client *red.Client, keyPrefix string) *MergeRedemptionRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultMergePrefix
	}

	return &MergeRedemptionRepository{
		client: client,
		prefix: prefix,
	}
}

// MarkRedeemed atomically claims the token id. SETNX guarantees exactly one
// concurrent redeemer observes true.
func (r *MergeRedemptionRepository) MarkRedeemed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return false, errors.New("token id is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	key := fmt.Sprintf("%s:redeemed:%s", r.prefix, tokenID)

	claimed, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis mark merge token redeemed: %w", err)
	}

	return claimed, nil
}

var _ port.MergeRedemptionStore = (*MergeRedemptionRepository)(nil)
