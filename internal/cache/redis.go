package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis is the shared-cache variant of Store, for multi-instance deployments.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(cfg RedisConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Redis{rdb: rdb, ttl: ttl}
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, key).Bytes()

	if err != nil {
		// treat redis trouble the same as a miss
		return nil, false
	}

	return val, true
}

func (c *Redis) Set(ctx context.Context, key string, val []byte) {
	_ = c.rdb.Set(ctx, key, val, c.ttl).Err()
}

func (c *Redis) DeletePrefix(ctx context.Context, prefix string) {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()

	keys := make([]string, 0, 16)

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if iter.Err() != nil {
		return
	}

	if len(keys) > 0 {
		_ = c.rdb.Del(ctx, keys...).Err()
	}
}
