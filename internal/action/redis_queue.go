package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	storageredis "Parry-QV/internal/storage/redis"
	"Parry-QV/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Redis     storageredis.Config
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 使用 Redis list 实现简单的动作队列。
type RedisQueue struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	client, err := storageredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	queue := cfg.Queue
	if queue == "" {
		queue = "parryqv:actions"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{client: client, queue: queue, wait: wait}
}

// Publish 将动作投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, actionID string) error {
	if err := q.client.LPush(ctx, q.queue, actionID).Err(); err != nil {
		return fmt.Errorf("Redis 发布动作失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 从 Redis 获取动作。处理失败的动作不会被重新投递。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if ctx.Err() != nil {
						return
					}
					fail(fmt.Errorf("Redis 取动作失败: %w", err))
					return
				}
				if len(values) != 2 {
					continue
				}
				if err := handler(ctx, values[1]); err != nil {
					logger.L().Warn("处理动作失败", slog.String("action_id", values[1]), slog.Any("error", err))
				}
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
