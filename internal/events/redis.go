package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"Recipe-Chain/internal/model"
)

// RedisStreamConfig 描述 Redis Stream 发布目标。
type RedisStreamConfig struct {
	Address  string
	Password string
	DB       int
	Stream   string
	// MaxLen 为 0 时不裁剪流。
	MaxLen int64
}

// RedisStreamPublisher 使用 XADD 把事件追加到 Redis Stream。
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher 连接 Redis 并校验连通性。
func NewRedisStreamPublisher(cfg RedisStreamConfig) (*RedisStreamPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis 地址不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisStreamPublisherWithClient(client, cfg.Stream, cfg.MaxLen), nil
}

// NewRedisStreamPublisherWithClient 复用已有客户端。
func NewRedisStreamPublisherWithClient(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	if stream == "" {
		stream = "recipechain:events"
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Args 构造单个事件的 XADD 参数。
func (p *RedisStreamPublisher) Args(event model.Event) (*redis.XAddArgs, error) {
	payload, err := encode(event)
	if err != nil {
		return nil, fmt.Errorf("编码事件失败: %w", err)
	}
	return &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: map[string]any{
			"tx_id":   event.TxID,
			"key":     RoutingKey(event),
			"payload": string(payload),
		},
	}, nil
}

// Publish 在同一个 pipeline 中追加全部事件。
func (p *RedisStreamPublisher) Publish(ctx context.Context, events []model.Event) error {
	if p == nil || p.client == nil {
		return errors.New("Redis 发布器未初始化")
	}
	if len(events) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, event := range events {
		args, err := p.Args(event)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入 Redis Stream 失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisStreamPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
