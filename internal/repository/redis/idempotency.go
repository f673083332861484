package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

var _ repository.IdempotencyStore = (*redisIdempotency)(nil)

const (
	lockKeyPrefix = "sentinel:judge:lock:"
	doneKeyPrefix = "sentinel:judge:done:"

	// LockTTL is how long a lease survives without a refresh. Owners must
	// refresh well within it.
	LockTTL      = 30 * time.Second
	completedTTL = 24 * time.Hour
)

// acquireScript returns 2 when the submission is completed, 1 when the lease
// was taken and 0 when someone else holds it.
var acquireScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 2
end
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  return 1
end
return 0
`)

type redisIdempotency struct {
	client *goredis.Client
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store with a
// leased in-progress key and a separate completed marker.
func NewRedisIdempotencyStore(client *goredis.Client) repository.IdempotencyStore {
	return &redisIdempotency{client: client}
}

// AcquireLock checks the completed marker and takes the lease in one step.
func (r *redisIdempotency) AcquireLock(ctx context.Context, submissionID uuid.UUID) (repository.LockState, error) {
	keys := []string{lockKey(submissionID), doneKey(submissionID)}
	n, err := acquireScript.Run(ctx, r.client, keys, time.Now().Unix(), LockTTL.Milliseconds()).Int()
	if err != nil {
		return repository.LockHeld, fmt.Errorf("redis: acquire lock: %w", err)
	}
	switch n {
	case 2:
		return repository.LockCompleted, nil
	case 1:
		return repository.LockAcquired, nil
	default:
		return repository.LockHeld, nil
	}
}

// RefreshLock pushes the lease expiry out by LockTTL.
func (r *redisIdempotency) RefreshLock(ctx context.Context, submissionID uuid.UUID) error {
	ok, err := r.client.PExpire(ctx, lockKey(submissionID), LockTTL).Result()
	if err != nil {
		return fmt.Errorf("redis: refresh lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("redis: refresh lock: lease for %s expired", submissionID)
	}
	return nil
}

// ReleaseLock deletes the lease.
func (r *redisIdempotency) ReleaseLock(ctx context.Context, submissionID uuid.UUID) error {
	if err := r.client.Del(ctx, lockKey(submissionID)).Err(); err != nil {
		return fmt.Errorf("redis: release lock: %w", err)
	}
	return nil
}

// MarkCompleted sets the completed marker for a day and drops the lease.
func (r *redisIdempotency) MarkCompleted(ctx context.Context, submissionID uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, doneKey(submissionID), time.Now().Unix(), completedTTL)
		pipe.Del(ctx, lockKey(submissionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: mark completed: %w", err)
	}
	return nil
}

func lockKey(id uuid.UUID) string {
	return lockKeyPrefix + id.String()
}

func doneKey(id uuid.UUID) string {
	return doneKeyPrefix + id.String()
}
