package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

const (
	defaultCodePrefix = "stepup:code"

	fieldID          = "id"
	fieldCode        = "code"
	fieldDestination = "destination"
	fieldAttempts    = "attempts"
	fieldIssuedAt    = "issued_at"
	fieldExpiresAt   = "expires_at"
	fieldConsumedAt  = "consumed_at"
)

// consumeScript marks the stored code consumed only when its id still matches
// and it has not been consumed before. The tombstone (rather than a DEL) lets
// a later verification of the same code be distinguished from an unknown one.
// Returns 1 when consumed now, -1 when already consumed, 0 when superseded or
// missing.
var consumeScript = red.NewScript(`
if redis.call("HGET", KEYS[1], "id") ~= ARGV[1] then
	return 0
end
if redis.call("HEXISTS", KEYS[1], "consumed_at") == 1 then
	return -1
end
redis.call("HSET", KEYS[1], "consumed_at", ARGV[2])
return 1
`)

// CodeRepository persists one-time codes in Redis keyed by (subject, purpose).
type CodeRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewCodeRepository constructs a code repository with the provided Redis client and key prefix.
func NewCodeRepository(client *red.Client, keyPrefix string) *CodeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultCodePrefix
	}

	return &CodeRepository{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Save stores the code under its (subject, purpose) key, replacing any prior
// live code for the pair.
func (r *CodeRepository) Save(ctx context.Context, code domain.OneTimeCode, ttl time.Duration) error {
	switch {
	case strings.TrimSpace(code.ID) == "":
		return errors.New("code id is required")
	case strings.TrimSpace(code.SubjectID) == "":
		return errors.New("subject id is required")
	case !code.Purpose.Valid():
		return fmt.Errorf("invalid code purpose %q", code.Purpose)
	case strings.TrimSpace(code.Code) == "":
		return errors.New("code value is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	key := r.key(code.SubjectID, code.Purpose)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldID:          code.ID,
		fieldCode:        code.Code,
		fieldDestination: code.Destination,
		fieldAttempts:    strconv.Itoa(code.Attempts),
		fieldIssuedAt:    strconv.FormatInt(code.IssuedAt.Unix(), 10),
		fieldExpiresAt:   strconv.FormatInt(code.ExpiresAt.Unix(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store code: %w", err)
	}

	return nil
}

// Fetch retrieves the live code for the provided subject and purpose.
func (r *CodeRepository) Fetch(ctx context.Context, subjectID string, purpose domain.CodePurpose) (*domain.OneTimeCode, error) {
	key := r.key(strings.TrimSpace(subjectID), purpose)

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall code: %w", err)
	}
	if len(values) == 0 || strings.TrimSpace(values[fieldCode]) == "" {
		return nil, repository.ErrNotFound
	}

	issuedAt, err := parseUnix(values[fieldIssuedAt])
	if err != nil {
		return nil, fmt.Errorf("parse issued_at: %w", err)
	}

	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	var consumedAt *time.Time
	if raw := values[fieldConsumedAt]; strings.TrimSpace(raw) != "" {
		ts, parseErr := parseUnix(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("parse consumed_at: %w", parseErr)
		}
		consumedAt = &ts
	}

	return &domain.OneTimeCode{
		ID:          values[fieldID],
		SubjectID:   strings.TrimSpace(subjectID),
		Purpose:     purpose,
		Destination: values[fieldDestination],
		Code:        values[fieldCode],
		Attempts:    attempts,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		ConsumedAt:  consumedAt,
	}, nil
}

// Consume marks the stored code consumed when its id still matches. Exactly
// one concurrent caller succeeds; later callers get ErrAlreadyConsumed while
// the tombstone lives, and ErrNotFound once the key has been superseded or
// has expired away.
func (r *CodeRepository) Consume(ctx context.Context, subjectID string, purpose domain.CodePurpose, codeID string) error {
	key := r.key(strings.TrimSpace(subjectID), purpose)

	res, err := consumeScript.Run(ctx, r.client, []string{key}, codeID, strconv.FormatInt(r.now().Unix(), 10)).Int()
	if err != nil {
		return fmt.Errorf("redis consume code: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return repository.ErrAlreadyConsumed
	default:
		return repository.ErrNotFound
	}
}

// IncrementAttempts increments the failed-verification counter and returns the new value.
func (r *CodeRepository) IncrementAttempts(ctx context.Context, subjectID string, purpose domain.CodePurpose) (int, error) {
	if _, err := r.Fetch(ctx, subjectID, purpose); err != nil {
		return 0, err
	}

	key := r.key(strings.TrimSpace(subjectID), purpose)
	count, err := r.client.HIncrBy(ctx, key, fieldAttempts, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hincrby code attempts: %w", err)
	}

	return int(count), nil
}

// Invalidate removes any live code for the pair. Absence is not an error.
func (r *CodeRepository) Invalidate(ctx context.Context, subjectID string, purpose domain.CodePurpose) error {
	key := r.key(strings.TrimSpace(subjectID), purpose)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis invalidate code: %w", err)
	}

	return nil
}

// WithClock overrides the internal clock, used in tests.
func (r *CodeRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

func (r *CodeRepository) key(subjectID string, purpose domain.CodePurpose) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, subjectID, purpose)
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.CodeStore = (*CodeRepository)(nil)
