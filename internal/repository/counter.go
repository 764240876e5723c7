package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowCounter counts hits per key inside a fixed window that starts on the
// first hit and expires after window.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client, prefix string) WindowCounter {
	return &redisCounter{
		client: client,
		prefix: prefix,
	}
}

func (r *redisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	full := r.prefix + "rate:" + key

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	pipe.ExpireNX(ctx, full, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis rate counter: %w", err)
	}

	return incr.Val(), nil
}
