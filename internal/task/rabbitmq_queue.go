package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 使用 RabbitMQ 投递对话任务，消息体为 JSON 编码的 Delivery。
type RabbitMQQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQQueue 创建 RabbitMQ 队列实例。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "hedera-agent.tasks"
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
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "设置 RabbitMQ QOS 失败")
		}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败")
	}
	return &RabbitMQQueue{conn: conn, ch: ch, queue: queue}, nil
}

// publishing 将投递转为 AMQP 消息，会话与账户同时写入消息头供运维排查。
func publishing(delivery Delivery) (amqp.Publishing, error) {
	body, err := delivery.Encode()
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     delivery.TaskID,
		CorrelationId: delivery.SessionID,
		Timestamp:     time.UnixMilli(delivery.EnqueuedAt),
		Headers: amqp.Table{
			"session_id": delivery.SessionID,
			"account_id": delivery.AccountID,
			"mode":       string(delivery.Mode),
			"attempt":    int32(delivery.Attempt),
		},
		Body: body,
	}, nil
}

// Publish 将任务投递到 RabbitMQ。
func (q *RabbitMQQueue) Publish(ctx context.Context, delivery Delivery) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	msg, err := publishing(delivery)
	if err != nil {
		return err
	}
	if err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, msg); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "RabbitMQ 发布任务失败", xerrors.WithMetadata("task_id", delivery.TaskID))
	}
	return nil
}

// Consume 使用手动确认模式消费 RabbitMQ 队列。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
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
					settle(msg, handleMessage(ctx, msg, handler))
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

type ack int

const (
	ackDone ack = iota
	ackRequeue
	ackDrop
)

// handleMessage 解析并处理一条消息，返回消息应如何确认。
func handleMessage(ctx context.Context, msg amqp.Delivery, handler Handler) ack {
	delivery, err := DecodeDelivery(msg.Body)
	if err != nil {
		logger.L().Warn("丢弃无法解析的投递", slog.String("message_id", msg.MessageId), slog.Any("error", err))
		return ackDrop
	}
	if err := handler(ctx, delivery); err != nil {
		logger.L().Warn("任务处理失败，消息回队",
			slog.String("task_id", delivery.TaskID),
			slog.String("session_id", delivery.SessionID),
			slog.Any("error", err))
		return ackRequeue
	}
	return ackDone
}

func settle(msg amqp.Delivery, outcome ack) {
	var err error
	switch outcome {
	case ackDrop:
		err = msg.Reject(false)
	case ackRequeue:
		err = msg.Nack(false, true)
	default:
		err = msg.Ack(false)
	}
	if err != nil {
		logger.L().Error("RabbitMQ 消息确认失败", slog.String("message_id", msg.MessageId), slog.Any("error", err))
	}
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
