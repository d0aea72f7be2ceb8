package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, task ReviewTask) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{
		client: client,
		stream: stream,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, task ReviewTask) error {
	attempt := task.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"review_id": task.ReviewID,
		"code":      task.Code,
		"language":  task.Language,
		"attempt":   attempt,
	}
	if task.Filename != "" {
		fields["filename"] = task.Filename
	}
	if task.Phase != "" {
		fields["phase"] = task.Phase
	}
	if task.TraceID != "" {
		fields["trace_id"] = task.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue review task: %w", err)
	}

	slog.InfoContext(ctx, "enqueued review task",
		"review_id", task.ReviewID,
		"language", task.Language,
		"code_bytes", len(task.Code),
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
