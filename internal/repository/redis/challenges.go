package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

const (
	defaultChallengePrefix = "stepup:challenge"

	challengeFieldID   = "id"
	challengeFieldData = "data"
)

// removeScript deletes the stored challenge only when its id still matches,
// so a stale caller cannot remove a superseding challenge.
var removeScript = red.NewScript(`
if redis.call("HGET", KEYS[1], "id") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type storedChallenge struct {
	ID        string                  `json:"id"`
	SubjectID string                  `json:"subject_id"`
	Action    domain.ActionType       `json:"action"`
	Method    domain.VerificationMethod `json:"method"`
	State     domain.ChallengeState   `json:"state"`
	Payload   domain.ChallengePayload `json:"payload"`
	CreatedAt time.Time               `json:"created_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// ChallengeRepository persists in-flight action challenges in Redis keyed by
// (subject, action). TTL on the key doubles as the challenge expiry fallback.
type ChallengeRepository struct {
	client *red.Client
	prefix string
}

// NewChallengeRepository constructs a challenge repository with the provided Redis client and key prefix.
func NewChallengeRepository(client *red.Client, keyPrefix string) *ChallengeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}

	return &ChallengeRepository{
		client: client,
		prefix: prefix,
	}
}

// Save stores the challenge under its (subject, action) key, replacing any
// prior live challenge for the pair.
func (r *ChallengeRepository) Save(ctx context.Context, challenge domain.ActionChallenge, ttl time.Duration) error {
	switch {
	case strings.TrimSpace(challenge.ID) == "":
		return errors.New("challenge id is required")
	case strings.TrimSpace(challenge.SubjectID) == "":
		return errors.New("subject id is required")
	case !challenge.Action.Valid():
		return fmt.Errorf("invalid action %q", challenge.Action)
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	data, err := json.Marshal(storedChallenge{
		ID:        challenge.ID,
		SubjectID: challenge.SubjectID,
		Action:    challenge.Action,
		Method:    challenge.Method,
		State:     challenge.State,
		Payload:   challenge.Payload,
		CreatedAt: challenge.CreatedAt,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	key := r.key(challenge.SubjectID, challenge.Action)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		challengeFieldID:   challenge.ID,
		challengeFieldData: string(data),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store challenge: %w", err)
	}

	return nil
}

// Fetch retrieves the live challenge for the provided subject and action.
func (r *ChallengeRepository) Fetch(ctx context.Context, subjectID string, action domain.ActionType) (*domain.ActionChallenge, error) {
	key := r.key(strings.TrimSpace(subjectID), action)

	raw, err := r.client.HGet(ctx, key, challengeFieldData).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis hget challenge: %w", err)
	}

	var stored storedChallenge
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}

	return &domain.ActionChallenge{
		ID:        stored.ID,
		SubjectID: stored.SubjectID,
		Action:    stored.Action,
		Method:    stored.Method,
		State:     stored.State,
		Payload:   stored.Payload,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// Remove deletes the challenge when its id still matches.
func (r *ChallengeRepository) Remove(ctx context.Context, subjectID string, action domain.ActionType, challengeID string) error {
	key := r.key(strings.TrimSpace(subjectID), action)

	deleted, err := removeScript.Run(ctx, r.client, []string{key}, challengeID).Int()
	if err != nil {
		return fmt.Errorf("redis remove challenge: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *ChallengeRepository) key(subjectID string, action domain.ActionType) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, subjectID, action)
}

var _ port.ChallengeStore = (*ChallengeRepository)(nil)
