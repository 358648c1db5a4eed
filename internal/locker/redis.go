package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"milestone-escrow-go/internal/models"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLocker extends a KeyedMutex across processes with a redislock lease.
// The local mutex is taken first so a single instance never competes with
// itself in Redis.
type RedisLocker struct {
	local  *KeyedMutex
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	prefix string
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(rdb redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		local:  NewKeyedMutex(),
		client: redislock.New(rdb),
		ttl:    ttl,
		wait:   wait,
		prefix: "escrow:lock:",
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	releaseLocal, err := r.local.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	obtainCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	lock, err := r.client.Obtain(obtainCtx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if err != nil {
		releaseLocal()
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", models.ErrLockNotObtained, key)
		}
		return nil, fmt.Errorf("unable to obtain lock %s: %w", key, err)
	}

	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			zap.L().Warn("Failed to release redis lock", zap.String("key", key), zap.Error(err))
		}
		releaseLocal()
	}, nil
}
