package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SyncRunTimeout bounds a single synchronizer run. Lock TTLs must cover it.
const SyncRunTimeout = time.Hour

// SyncLockKey builds redis keys for synchronizer critical sections.
func SyncLockKey(job string) string {
	return fmt.Sprintf("distribution:sync:%s:lock", job)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RunLock serialises synchronizer runs across processes. A nil RunLock or one
// without a client grants every acquisition.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock constructs the lock. ttl bounds how long a crashed run blocks others.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = SyncRunTimeout
	}
	return &RunLock{client: client, ttl: ttl}
}

// Acquire takes the lock for job and returns its release function.
func (l *RunLock) Acquire(ctx context.Context, job string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if l == nil || l.client == nil {
		return noop, nil
	}
	key := SyncLockKey(job)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return noop, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return noop, fmt.Errorf("%w: %s", ErrLocked, job)
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("shared: release %s: %w", key, err)
		}
		return nil
	}, nil
}

// WithLock runs fn while holding the job lock.
func (l *RunLock) WithLock(ctx context.Context, job string, fn func(context.Context) error) (err error) {
	release, err := l.Acquire(ctx, job)
	if err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context so cancellation does not strand the key.
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn(ctx)
}
