package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// extendScript resets the ttl only if this holder still owns the key.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLocker is a Locker shared by every replica pointing at the same Redis.
type RedisLocker struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewRedisLocker connects to Redis at url (redis://...) and verifies the connection.
func NewRedisLocker(ctx context.Context, url, keyPrefix string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	if keyPrefix == "" {
		keyPrefix = "citycatalyst:lock:"
	}
	return &RedisLocker{rdb: rdb, keyPrefix: keyPrefix}, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

// Acquire retries SET NX with capped exponential backoff until it wins or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return &redisLock{rdb: l.rdb, key: lockKey, value: lockValue}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

type redisLock struct {
	rdb   *redis.Client
	key   string
	value string
}

func (lk *redisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lk.rdb, []string{lk.key}, lk.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (lk *redisLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lk.rdb, []string{lk.key}, lk.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}
