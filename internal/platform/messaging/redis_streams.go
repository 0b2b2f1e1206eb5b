package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fangov/contexts/governance/proposal-engine/ports"

	"github.com/redis/go-redis/v9"
)

// RedisStreams publishes envelopes to one Redis stream per topic, named
// <prefix>.<topic>. Stream entries carry routing fields next to the full
// JSON envelope so consumers can filter without decoding.
type RedisStreams struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisStreams(ctx context.Context, url string, prefix string, logger *slog.Logger) (*RedisStreams, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStreams{client: client, prefix: prefix, logger: logger}, nil
}

func (r *RedisStreams) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	stream := StreamName(r.prefix, topic)
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: StreamValues(event, payload),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	r.logger.Debug("event published",
		"event", "redis_stream_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"stream", stream,
		"stream_id", id,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)
	return nil
}

func (r *RedisStreams) Close() error {
	return r.client.Close()
}

func StreamName(prefix string, topic string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

func StreamValues(event ports.EventEnvelope, payload []byte) map[string]any {
	return map[string]any{
		"event_id":      event.EventID,
		"event_type":    event.EventType,
		"partition_key": event.PartitionKey,
		"occurred_at":   event.OccurredAt.UTC().Format(time.RFC3339Nano),
		"payload":       string(payload),
	}
}
