package changefeed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/logger"
)

// Publisher names accepted in changefeed.publisher.
const (
	PublisherLog   = "log"
	PublisherRedis = "redis"
	PublisherKafka = "kafka"
)

// NewPublisher builds the publisher selected by cfg.Publisher.
func NewPublisher(ctx context.Context, cfg config.ChangeFeedConfig) (core.ChangePublisher, error) {
	switch cfg.Publisher {
	case PublisherLog, "":
		return NewLogPublisher(logger.Component("changefeed")), nil
	case PublisherRedis:
		return NewRedisPublisher(ctx, cfg.Redis)
	case PublisherKafka:
		return NewKafkaPublisher(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unsupported change feed publisher: %s", cfg.Publisher)
	}
}

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, events []*core.ChangeEvent) error {
	for _, e := range events {
		p.log.InfoContext(ctx, "change",
			"collection", e.Collection,
			"operation", e.Operation,
			"key", e.Key,
			"affected", e.Affected,
			"timestamp", e.Timestamp,
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
