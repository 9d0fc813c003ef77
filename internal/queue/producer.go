package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TaskIngest  = "ingest"
	TaskCleanup = "cleanup"
)

// Producer appends task messages to a Redis stream.
type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// Enqueue adds values as one stream entry. A nil producer or client is a no-op
// so the API can run without a worker.
func (p *Producer) Enqueue(ctx context.Context, values map[string]any) error {
	if p == nil || p.client == nil {
		return nil
	}
	if _, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result(); err != nil {
		return fmt.Errorf("enqueue %v on %s: %w", values["type"], p.stream, err)
	}
	return nil
}
