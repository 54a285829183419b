package action

import (
	"context"
	"log/slog"
	"sync"

	xerrors "Parry-QV/internal/errors"
	"Parry-QV/pkg/logger"
)

// ErrQueueClosed 表示队列已关闭，不再接受新的动作。
var ErrQueueClosed = xerrors.New(xerrors.CodeQueueFailure, "action queue is closed")

// MemoryQueue 以带缓冲的 channel 在进程内传递动作 ID，用于测试与单实例部署。
// 同一 ID 在被消费前只会排队一次。
type MemoryQueue struct {
	ids  chan string
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewMemoryQueue 创建容量为 size 的内存队列，size 非正时取 64。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		ids:     make(chan string, size),
		done:    make(chan struct{}),
		pending: make(map[string]struct{}),
	}
}

// Publish 投递动作 ID。队列已满时阻塞，直到有空位、ctx 结束或队列关闭。
func (q *MemoryQueue) Publish(ctx context.Context, actionID string) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	q.mu.Lock()
	if _, queued := q.pending[actionID]; queued {
		q.mu.Unlock()
		return nil
	}
	q.pending[actionID] = struct{}{}
	q.mu.Unlock()

	select {
	case q.ids <- actionID:
		return nil
	case <-ctx.Done():
		q.release(actionID)
		return ctx.Err()
	case <-q.done:
		q.release(actionID)
		return ErrQueueClosed
	}
}

// Consume 启动 workerCount 个协程处理动作，直到 ctx 结束或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	log := logger.Named("action.queue")
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case actionID := <-q.ids:
					q.release(actionID)
					if err := handler(ctx, actionID); err != nil {
						log.Warn("处理动作失败", slog.String("action_id", actionID), slog.Any("error", err))
					}
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrQueueClosed
}

// Len 返回尚未被消费的动作数量。
func (q *MemoryQueue) Len() int {
	return len(q.ids)
}

// Close 关闭队列，等待中的发布与消费协程随之返回。
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

func (q *MemoryQueue) release(actionID string) {
	q.mu.Lock()
	delete(q.pending, actionID)
	q.mu.Unlock()
}
