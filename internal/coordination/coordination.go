package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LegStatus is the coordination store's per-leg volatile status,
// distinct from the durable record's overall saga Status.
type LegStatus string

const (
	LegStatusPending   LegStatus = "pending"
	LegStatusConfirmed LegStatus = "confirmed"
	// LegStatusCancelled is its own state, never folded back into
	// LegStatusPending after a compensating cancellation.
	LegStatusCancelled LegStatus = "cancelled"
)

const (
	keyLock     = "lock/%s"
	keyActive   = "active/%s"
	keySteps    = "steps/%s"
	keyPending  = "pending"
	keyRateLim  = "ratelimit/%s"
	keyMetadata = "metadata/%s"
)

// acquireLockScript is an atomic SET-if-absent-with-TTL; Redis SETNX
// plus EXPIRE is not atomic across two round trips under contention,
// so this uses a single EVAL. Release is a plain DEL, safe because a
// lock only ever gates a single admission attempt per requestId.
const acquireLockScript = `
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
else
	return 0
end
`

// rateLimitScript atomically increments a 60s-windowed counter and
// reports whether the post-increment value is within max.
const rateLimitScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
if count <= tonumber(ARGV[2]) then
	return 1
else
	return 0
end
`

// Store is the coordination store's operation surface (spec component
// 2). Every method is best-effort: failures here must never halt
// confirmations or forbid aggregation, only admission.
type Store struct {
	c *Client
}

// New wraps a connected Client.
func New(c *Client) *Store { return &Store{c: c} }

// AcquireLock attempts to set lock/{requestId} with the given TTL.
// Returns (false, nil) on a normal miss (lock not acquired) and
// (false, err) only on a genuine Redis error.
func (s *Store) AcquireLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf(keyLock, requestID)
	res, err := s.c.evalWithFallback(ctx, "acquire_lock", acquireLockScript, []string{key}, requestID, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// ReleaseLock deletes lock/{requestId}. Best-effort: errors are
// swallowed by callers performing finalisation cleanup.
func (s *Store) ReleaseLock(ctx context.Context, requestID string) error {
	key := fmt.Sprintf(keyLock, requestID)
	return s.c.client.Del(ctx, key).Err()
}

// CheckAndIncrement atomically increments ratelimit/{userId} in a 60s
// window and reports whether the post-increment count is within max.
// Fails open: a Redis error returns (true, err) so admission proceeds;
// callers should log err but not block on it.
func (s *Store) CheckAndIncrement(ctx context.Context, userID string, max int) (bool, error) {
	key := fmt.Sprintf(keyRateLim, userID)
	res, err := s.c.evalWithFallback(ctx, "rate_limit", rateLimitScript, []string{key}, 60, max).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit check: %w", err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// SetActiveSnapshot caches a serialised saga snapshot for ttl.
func (s *Store) SetActiveSnapshot(ctx context.Context, requestID string, snapshot interface{}, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal active snapshot: %w", err)
	}
	key := fmt.Sprintf(keyActive, requestID)
	return s.c.client.Set(ctx, key, data, ttl).Err()
}

// GetActiveSnapshot reads the cached snapshot, if any. A miss returns
// (false, nil) — absence is not an error, just "no snapshot cached".
func (s *Store) GetActiveSnapshot(ctx context.Context, requestID string, out interface{}) (bool, error) {
	key := fmt.Sprintf(keyActive, requestID)
	data, err := s.c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get active snapshot: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal active snapshot: %w", err)
	}
	return true, nil
}

// ClearActiveSnapshot removes active/{requestId}.
func (s *Store) ClearActiveSnapshot(ctx context.Context, requestID string) error {
	key := fmt.Sprintf(keyActive, requestID)
	return s.c.client.Del(ctx, key).Err()
}

// IncrementStepCounter bumps steps/{requestId}[marker] by one. Purely
// observational — no algorithm reads this back for correctness.
func (s *Store) IncrementStepCounter(ctx context.Context, requestID, marker string) error {
	key := fmt.Sprintf(keySteps, requestID)
	if err := s.c.client.HIncrBy(ctx, key, marker, 1).Err(); err != nil {
		return fmt.Errorf("increment step counter: %w", err)
	}
	return s.c.client.Expire(ctx, key, 2*time.Hour).Err()
}

// EnqueuePending adds requestId to the pending sorted set, scored by
// admission timestamp (unix seconds). No TTL: entries live until the
// sweeper or aggregate() removes them.
func (s *Store) EnqueuePending(ctx context.Context, requestID string, admittedAt time.Time) error {
	return s.c.client.ZAdd(ctx, keyPending, redis.Z{
		Score:  float64(admittedAt.Unix()),
		Member: requestID,
	}).Err()
}

// DequeuePending removes requestId from the pending sorted set.
func (s *Store) DequeuePending(ctx context.Context, requestID string) error {
	return s.c.client.ZRem(ctx, keyPending, requestID).Err()
}

// PendingOlderThan returns requestIds admitted before cutoff, used by
// the stuck-saga sweeper.
func (s *Store) PendingOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.c.client.ZRangeByScore(ctx, keyPending, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
}

// SetMetadata writes a free-form diagnostic map for requestId with a
// 2h TTL (last error, failed-at timestamp, and similar).
func (s *Store) SetMetadata(ctx context.Context, requestID string, fields map[string]interface{}) error {
	key := fmt.Sprintf(keyMetadata, requestID)
	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.c.client.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return s.c.client.Expire(ctx, key, 2*time.Hour).Err()
}

// GetMetadata reads the diagnostic map for requestId.
func (s *Store) GetMetadata(ctx context.Context, requestID string) (map[string]string, error) {
	key := fmt.Sprintf(keyMetadata, requestID)
	m, err := s.c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return m, nil
}

// Cleanup removes lock, active, steps, metadata, and the pending-queue
// entry for requestId in one best-effort batch via a pipeline.
func (s *Store) Cleanup(ctx context.Context, requestID string) error {
	pipe := s.c.client.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(keyLock, requestID))
	pipe.Del(ctx, fmt.Sprintf(keyActive, requestID))
	pipe.Del(ctx, fmt.Sprintf(keySteps, requestID))
	pipe.Del(ctx, fmt.Sprintf(keyMetadata, requestID))
	pipe.ZRem(ctx, keyPending, requestID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}
