package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
)

// RedisPublisher appends events to a Redis list, capped at MaxLen entries.
type RedisPublisher struct {
	client *redis.Client
	key    string
	maxLen int64
}

func NewRedisPublisher(ctx context.Context, cfg config.ChangeFeedRedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisPublisherWithClient(client, cfg.Key, cfg.MaxLen), nil
}

func NewRedisPublisherWithClient(client *redis.Client, key string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, key: key, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, events []*core.ChangeEvent) error {
	values, err := encodeEvents(events)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, p.key, values...)
		if p.maxLen > 0 {
			pipe.LTrim(ctx, p.key, -p.maxLen, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push change events: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func encodeEvents(events []*core.ChangeEvent) ([]any, error) {
	values := make([]any, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal change event: %w", err)
		}
		values = append(values, data)
	}
	return values, nil
}
