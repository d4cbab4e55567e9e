package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher appends events to a Redis Stream for external audit-log and
// notification subsystems to consume at their own pace.
type Publisher struct {
	client *redis.Client
	stream string
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, stream: TransactionStream}
}

func (p *Publisher) Emit(ctx context.Context, ev Event) error {
	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event": eventJSON,
		},
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish event to stream %s: %w", p.stream, err)
	}
	return nil
}
