package task

import (
	"context"
	"sync"

	xerrors "hedera-agent-kit/internal/errors"
)

// MemoryQueue 按会话分片的内存队列。同一会话的投递由同一个分片协程顺序处理。
type MemoryQueue struct {
	mu     sync.RWMutex
	shards []chan Delivery
	closed bool
}

// NewMemoryQueue 创建一个内存队列，size 为每个分片的缓冲长度。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	shards := make([]chan Delivery, defaultShards)
	for i := range shards {
		shards[i] = make(chan Delivery, size)
	}
	return &MemoryQueue{shards: shards}
}

// Publish 将投递写入会话所属分片。
func (q *MemoryQueue) Publish(ctx context.Context, delivery Delivery) error {
	if delivery.TaskID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "投递消息缺少任务 ID")
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.shards[delivery.shard(len(q.shards))] <- delivery:
		return nil
	}
}

// Consume 为每个分片启动一个协程，workerCount 限制同时执行的任务数。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	slots := make(chan struct{}, workerCount)
	var wg sync.WaitGroup
	for _, shard := range q.shards {
		wg.Add(1)
		go func(ch <-chan Delivery) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case delivery, ok := <-ch:
					if !ok {
						return
					}
					select {
					case slots <- struct{}{}:
					case <-ctx.Done():
						return
					}
					_ = handler(ctx, delivery)
					<-slots
				}
			}
		}(shard)
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		for _, ch := range q.shards {
			close(ch)
		}
		q.closed = true
	}
	return nil
}
