package views

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend shares cached views between gateway instances. Each tag is a
// Redis set holding the keys tagged with it.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend stores views under prefix.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "parryqv:view:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	full := r.prefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, full, value, ttl)
		for _, tag := range tags {
			tagKey := r.tagKey(tag)
			pipe.SAdd(ctx, tagKey, full)
			if ttl > 0 {
				pipe.Expire(ctx, tagKey, ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Drop(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tagKey := r.tagKey(tag)
		members, err := r.client.SMembers(ctx, tagKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis members %s: %w", tag, err)
		}
		if err := r.client.Del(ctx, append(members, tagKey)...).Err(); err != nil {
			return fmt.Errorf("redis drop %s: %w", tag, err)
		}
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) tagKey(tag string) string {
	return r.prefix + "tag:" + tag
}
