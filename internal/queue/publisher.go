package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/inductor/internal/model"
)

// Publisher pushes response envelopes onto the controller's response list.
type Publisher struct {
	rdb   redis.UniversalClient
	queue string
}

// NewPublisher creates a publisher for the given response list.
func NewPublisher(rdb redis.UniversalClient, queue string) *Publisher {
	return &Publisher{rdb: rdb, queue: queue}
}

// Publish encodes env as a JSON object and LPUSHes it.
func (p *Publisher) Publish(ctx context.Context, env model.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := p.rdb.LPush(ctx, p.queue, b).Err(); err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("push response: %w", err)
	}
	publishedTotal.WithLabelValues("ok").Inc()
	return nil
}
