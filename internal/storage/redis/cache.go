package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hedera-agent-kit/pkg/mirror"
)

// Config 描述 Redis 缓存的连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache 基于 Redis 实现镜像节点查询缓存，多个实例可以共享。
type Cache struct {
	client commander
	closer func() error
	prefix string
}

var _ mirror.Cache = (*Cache)(nil)

// NewCache 连接 Redis 并返回缓存实例。
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &Cache{client: client, closer: client.Close, prefix: cfg.Prefix}, nil
}

// Get 读取缓存，键不存在时返回 false。
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取 Redis 缓存失败: %w", err)
	}
	return value, true, nil
}

// Set 写入缓存，ttl 非正数时不过期。
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("写入 Redis 缓存失败: %w", err)
	}
	return nil
}

// Close 关闭连接。
func (c *Cache) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}
