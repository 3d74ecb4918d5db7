package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis stores each document under a single string key, shared by every
// server instance pointed at the same prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("empty redis address")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: rdb, prefix: redisPrefix(cfg.KeyPrefix)}, nil
}

func redisPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = "truce"
	}
	return strings.TrimSuffix(p, ":") + ":doc:"
}

func (r *Redis) key(name string) string { return r.prefix + name }

func (r *Redis) Get(ctx context.Context, name string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: redis get %s: %w", name, err)
	}
	return b, nil
}

func (r *Redis) Put(ctx context.Context, name string, data []byte) error {
	if err := r.client.Set(ctx, r.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("docstore: redis set %s: %w", name, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
