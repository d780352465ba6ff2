// Package events provides lifecycle event publishers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
)

// RedisPublisher publishes lifecycle events to a Redis pub/sub topic.
// Delivery is at-least-once for connected subscribers; the authoritative
// state lives in the job store, so publish failures are the caller's to log
// and drop.
type RedisPublisher struct {
	client redis.UniversalClient
	topic  string
}

// NewRedisPublisher creates a publisher for the given topic.
func NewRedisPublisher(client redis.UniversalClient, topic string) *RedisPublisher {
	return &RedisPublisher{client: client, topic: topic}
}

// Publish sends one event to the topic.
func (p *RedisPublisher) Publish(ctx context.Context, event model.LifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.topic, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// LoggingPublisher records events to the log only. It backs deployments with
// no event bus configured and keeps tests quiet.
type LoggingPublisher struct {
	logger *slog.Logger
}

// NewLoggingPublisher creates a log-only publisher.
func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event at debug level.
func (p *LoggingPublisher) Publish(ctx context.Context, event model.LifecycleEvent) error {
	p.logger.DebugContext(ctx, "lifecycle event",
		"job_id", event.JobID,
		"status", event.Status,
		"provider", event.Provider,
		"device", event.Device,
		"reason", event.Reason)
	return nil
}
