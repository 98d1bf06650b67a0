package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Acquire when another owner holds the lock.
var ErrLockHeld = errors.New("checkpoint: lock held by another owner")

// Lua scripts guard release and extension so only the token holder can
// mutate the lock.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		local val = redis.call("get", KEYS[1])
		if not val then
			return -1
		end
		if val == ARGV[1] then
			return redis.call("pexpire", KEYS[1], tonumber(ARGV[2]))
		else
			return -2
		end
	`)
)

// RedisLock is a single-owner distributed lock. Each instance carries a
// random token so a crashed holder's expired lock can never be released
// by a different process reusing the key.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a lock on key with the given TTL. ttl <= 0
// selects 30 seconds.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire takes the lock with SET NX. Returns ErrLockHeld when another
// owner has it.
func (l *RedisLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("checkpoint: acquire lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release deletes the lock only if this instance's token still owns it.
// Releasing an expired or stolen lock is a no-op, not an error.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("checkpoint: release lock: %w", err)
	}
	return nil
}

// Extend renews the TTL if this instance still owns the lock. Returns
// false when the lock expired or was taken by another owner.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	res, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("checkpoint: extend lock: %w", err)
	}
	return res == 1, nil
}

// Owner returns the current token holding the key, or "" when unlocked.
func (l *RedisLock) Owner(ctx context.Context) (string, error) {
	val, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("checkpoint: lock owner: %w", err)
	}
	return val, nil
}

// WithLock runs fn while holding the lock and releases it on every exit
// path. The release error is surfaced only when fn itself succeeded.
func (l *RedisLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	fnErr := fn(ctx)
	relErr := l.Release(context.WithoutCancel(ctx))
	if fnErr != nil {
		return fnErr
	}
	return relErr
}
