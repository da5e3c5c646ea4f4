package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skara-labs/crowdgate/internal/config"
)

// RedisClient is the connection shared by the Redis-backed stores. Every key
// they touch goes through Key so one Redis can host several sales.
type RedisClient struct {
	Client *redis.Client
	prefix string
}

func NewRedisClient(ctx context.Context, cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	dialTimeout := cfg.Redis.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}

	return &RedisClient{Client: rdb, prefix: cfg.Redis.KeyPrefix}, nil
}

// Key joins parts under the configured prefix, e.g. "crowdgate:idem:<k>".
func (r *RedisClient) Key(parts ...string) string {
	if r.prefix == "" {
		return strings.Join(parts, ":")
	}
	return r.prefix + ":" + strings.Join(parts, ":")
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}
