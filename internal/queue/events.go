package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventPublisher writes a review's lifecycle events to its per-review
// Redis stream, where the SSE endpoint picks them up. The stream expires
// with the record so abandoned reviews clean themselves up.
type EventPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEventPublisher(client *redis.Client, ttl time.Duration) *EventPublisher {
	return &EventPublisher{client: client, ttl: ttl}
}

func (p *EventPublisher) Publish(ctx context.Context, reviewID, event, data string) error {
	stream := ReviewStreamName(reviewID)

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"event": event,
			"data":  data,
		},
	})
	pipe.Expire(ctx, stream, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing %s event: %w", event, err)
	}
	return nil
}
