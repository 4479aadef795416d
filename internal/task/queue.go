package task

import (
	"context"
)

// defaultShards 是内存与 Redis 队列默认的会话分片数。
const defaultShards = 4

// Handler 处理一条对话任务投递。
type Handler func(ctx context.Context, delivery Delivery) error

// Producer 负责向队列投递任务。
type Producer interface {
	Publish(ctx context.Context, delivery Delivery) error
	Close() error
}

// Consumer 负责从队列中消费任务。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
