package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mock/publisher_mock.go -package=mock github.com/smallbiznis/registrar/internal/events Publisher

// Publisher delivers a staged event to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

const channelPrefix = "registrar.events."

// RedisPublisher fans events out over Redis Pub/Sub, one channel per event type.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	body, err := json.Marshal(envelope(event))
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channelPrefix+event.EventType, body).Err()
}

// LogPublisher writes events to the log. Used when Redis is not configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events.publisher")}
}

func (p *LogPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	p.log.Info("event published",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.Any("payload", event.Payload),
	)
	return nil
}

type eventEnvelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt string         `json:"created_at"`
}

func envelope(event OutboxEvent) eventEnvelope {
	return eventEnvelope{
		ID:        event.ID.String(),
		Type:      event.EventType,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
