package action

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "Parry-QV/internal/errors"
	"Parry-QV/pkg/logger"
)

const (
	defaultRabbitQueue = "parryqv.actions"
	envelopeType       = "parryqv.action.v1"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// actionEnvelope 是投递到 RabbitMQ 的消息体。
type actionEnvelope struct {
	ActionID    string    `json:"action_id"`
	PublishedAt time.Time `json:"published_at"`
}

func encodeEnvelope(actionID string, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(actionEnvelope{ActionID: actionID, PublishedAt: now.UTC()})
	if err != nil {
		return amqp.Publishing{}, xerrors.Wrap(xerrors.CodeQueueFailure, err, "编码动作消息失败")
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    actionID,
		Type:         envelopeType,
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}

// decodeEnvelope 解析消息中的动作 ID，兼容只含 ID 的纯文本消息。
func decodeEnvelope(msg amqp.Delivery) (string, error) {
	if msg.ContentType != "application/json" {
		id := strings.TrimSpace(string(msg.Body))
		if id == "" {
			return "", xerrors.New(xerrors.CodeQueueFailure, "动作消息为空")
		}
		return id, nil
	}
	var env actionEnvelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return "", xerrors.Wrap(xerrors.CodeQueueFailure, err, "解析动作消息失败")
	}
	if env.ActionID == "" {
		return "", xerrors.New(xerrors.CodeQueueFailure, "动作消息缺少 action_id")
	}
	return env.ActionID, nil
}

// RabbitMQQueue 使用 RabbitMQ 实现动作队列。
type RabbitMQQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	closed chan *amqp.Error
	log    *slog.Logger
}

// NewRabbitMQQueue 连接 RabbitMQ 并声明动作队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = defaultRabbitQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	fail := func(err error, msg string) (*RabbitMQQueue, error) {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, msg)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return fail(err, "设置 RabbitMQ QOS 失败")
		}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		return fail(err, "声明 RabbitMQ 队列失败")
	}
	return &RabbitMQQueue{
		conn:   conn,
		ch:     ch,
		queue:  queue,
		closed: ch.NotifyClose(make(chan *amqp.Error, 1)),
		log:    logger.Named("action.queue").With(slog.String("queue", queue)),
	}, nil
}

// Publish 将动作封装为 JSON 消息投递到 RabbitMQ。
func (q *RabbitMQQueue) Publish(ctx context.Context, actionID string) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 队列未初始化")
	}
	msg, err := encodeEnvelope(actionID, time.Now())
	if err != nil {
		return err
	}
	if err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, msg); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递动作到 RabbitMQ 失败")
	}
	return nil
}

// Consume 以手动确认模式消费队列。可重试错误（如存储故障）会让消息重新入队，
// 其余结果一律确认，已广播的交易不会因重投而重复提交。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 队列未初始化")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败")
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					q.deliver(ctx, msg, handler)
				}
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		result = ctx.Err()
	case amqpErr, ok := <-q.closed:
		if ok && amqpErr != nil {
			result = xerrors.Wrap(xerrors.CodeQueueFailure, amqpErr, "RabbitMQ channel 意外关闭")
		} else {
			result = ctx.Err()
		}
	}
	wg.Wait()
	return result
}

func (q *RabbitMQQueue) deliver(ctx context.Context, msg amqp.Delivery, handler Handler) {
	actionID, err := decodeEnvelope(msg)
	if err != nil {
		q.log.Warn("丢弃无法解析的动作消息", slog.String("message_id", msg.MessageId), slog.Any("error", err))
		_ = msg.Nack(false, false)
		return
	}
	err = handler(ctx, actionID)
	if err == nil {
		_ = msg.Ack(false)
		return
	}
	if xerrors.RetryableError(err) && ctx.Err() == nil {
		q.log.Warn("动作处理暂时失败，重新入队", slog.String("action_id", actionID), slog.Any("error", err))
		_ = msg.Nack(false, true)
		return
	}
	q.log.Warn("处理动作失败", slog.String("action_id", actionID), slog.Any("error", err))
	_ = msg.Ack(false)
}

// Close 关闭 RabbitMQ 连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
