package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "hedera-agent-kit/internal/errors"
	"hedera-agent-kit/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。Address 可以是 host:port 或 redis:// URL。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	Shards    int
	BlockWait time.Duration
}

// RedisQueue 将对话任务按会话分片写入多个 Redis list，每个分片由一个协程顺序消费。
type RedisQueue struct {
	client *redis.Client
	keys   []string
	wait   time.Duration
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if strings.HasPrefix(cfg.Address, "redis://") || strings.HasPrefix(cfg.Address, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Address)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 Redis URL 失败")
		}
		opts = parsed
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	prefix := cfg.Queue
	if prefix == "" {
		prefix = "hedera-agent:tasks"
	}
	shards := cfg.Shards
	if shards <= 0 {
		shards = defaultShards
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	keys := make([]string, shards)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s:%d", prefix, i)
	}
	return &RedisQueue{client: client, keys: keys, wait: wait}
}

// Publish 将投递编码后写入会话所属分片。
func (q *RedisQueue) Publish(ctx context.Context, delivery Delivery) error {
	payload, err := delivery.Encode()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.keyFor(delivery), payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 发布任务失败", xerrors.WithMetadata("task_id", delivery.TaskID))
	}
	return nil
}

func (q *RedisQueue) keyFor(delivery Delivery) string {
	return q.keys[delivery.shard(len(q.keys))]
}

// Consume 每个分片一个协程执行 BRPOP，workerCount 限制同时执行的任务数。
// 处理失败的投递被放回分片尾部，下一次 BRPOP 会先取到它。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	slots := make(chan struct{}, workerCount)
	errCh := make(chan error, len(q.keys))
	var wg sync.WaitGroup
	for _, key := range q.keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := q.consumeShard(ctx, key, slots, handler); err != nil {
				errCh <- err
			}
		}(key)
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}
	wg.Wait()
	return err
}

func (q *RedisQueue) consumeShard(ctx context.Context, key string, slots chan struct{}, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		values, err := q.client.BRPop(ctx, q.wait, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return err
			}
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 取任务失败", xerrors.WithMetadata("queue", key))
		}
		if len(values) != 2 {
			continue
		}
		delivery, err := DecodeDelivery([]byte(values[1]))
		if err != nil {
			logger.L().Warn("丢弃无法解析的投递", slog.String("queue", key), slog.Any("error", err))
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			_ = q.client.RPush(context.Background(), key, values[1]).Err()
			return ctx.Err()
		}
		handlerErr := handler(ctx, delivery)
		<-slots
		if handlerErr != nil {
			if err := q.client.RPush(ctx, key, values[1]).Err(); err != nil {
				logger.L().Error("Redis 回退投递失败",
					slog.String("task_id", delivery.TaskID),
					slog.String("session_id", delivery.SessionID),
					slog.Any("error", err))
			}
		}
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
