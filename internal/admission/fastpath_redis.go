package admission

import (
	"context"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisFastPath implements FastPath on the Lua concurrency-cap scripts.
type RedisFastPath struct {
	rdb *redis.Client
}

func NewRedisFastPath(rdb *redis.Client) *RedisFastPath {
	return &RedisFastPath{rdb: rdb}
}

func (f *RedisFastPath) Acquire(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, f.rdb, key, limit, ttl)
}

func (f *RedisFastPath) Release(ctx context.Context, key string) error {
	return utils.ReleaseConcurrencyCap(ctx, f.rdb, key)
}
