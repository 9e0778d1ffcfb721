package cache

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type redisCache struct{ c *rdb.Client }

func newRedis(addr string, db int) *redisCache {
	return &redisCache{c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db})}
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	b, err := r.c.Get(context.Background(), key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *redisCache) Set(key string, value []byte, ttl time.Duration) {
	_ = r.c.Set(context.Background(), key, value, ttl).Err()
}

func (r *redisCache) Delete(key string) { _ = r.c.Del(context.Background(), key).Err() }
