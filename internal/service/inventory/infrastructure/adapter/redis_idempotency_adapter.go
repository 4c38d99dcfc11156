package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"nexus-inventory/internal/pkg/redis"
)

const doneMarker = "done"

// RedisIdempotencyAdapter 是 port.IdempotencyStore 的 Redis 实现，完成标记在 ttl 后过期。
type RedisIdempotencyAdapter struct {
	redisClient *redis.Client
	prefix      string
	ttl         time.Duration
}

func NewRedisIdempotencyAdapter(redisClient *redis.Client, prefix string, ttl time.Duration) *RedisIdempotencyAdapter {
	return &RedisIdempotencyAdapter{redisClient: redisClient, prefix: prefix, ttl: ttl}
}

func (a *RedisIdempotencyAdapter) key(k string) string {
	return fmt.Sprintf("%s:{%s}", a.prefix, k)
}

func (a *RedisIdempotencyAdapter) Seen(ctx context.Context, key string) (bool, error) {
	n, err := a.redisClient.GetClient().Exists(ctx, a.key(key)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "check idempotency key %s", key)
	}
	return n == 1, nil
}

func (a *RedisIdempotencyAdapter) MarkDone(ctx context.Context, key string) error {
	if err := a.redisClient.GetClient().Set(ctx, a.key(key), doneMarker, a.ttl).Err(); err != nil {
		return errors.Wrapf(err, "mark idempotency key %s done", key)
	}
	return nil
}
