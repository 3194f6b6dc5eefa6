package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is the wire form of an inbound order on the Redis list. Type and
// CorrelationID are the out-of-band properties; Body is the text payload.
type Message struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
	Body          string `json:"body"`
	Deliveries    int    `json:"deliveries,omitempty"`
}

func (m Message) encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(b), nil
}

func decodeMessage(raw string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// Delivery is one received message as seen by a Handler.
type Delivery interface {
	Type() string
	CorrelationID() string
	Body() []byte
	// Deliveries is how many earlier attempts were not acknowledged.
	Deliveries() int
	// Ack removes the message from the queue for good.
	Ack(ctx context.Context) error
}

// delivery is the Redis-backed Delivery.
type delivery struct {
	consumer *Consumer
	raw      string
	msg      Message
	acked    bool
}

func (d *delivery) Type() string          { return d.msg.Type }
func (d *delivery) CorrelationID() string { return d.msg.CorrelationID }
func (d *delivery) Body() []byte          { return []byte(d.msg.Body) }
func (d *delivery) Deliveries() int       { return d.msg.Deliveries }

func (d *delivery) Ack(ctx context.Context) error {
	if d.acked {
		return nil
	}
	if err := d.consumer.rdb.LRem(ctx, d.consumer.processingKey(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	d.acked = true
	return nil
}
