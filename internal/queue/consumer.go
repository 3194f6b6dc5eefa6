package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultConcurrency = 1
	defaultPollTimeout = time.Second
	defaultMaxRedeliv  = 5
)

// ErrRequeue tells the consumer the handler refused the message without
// processing it. The message goes back untouched, without counting as a
// delivery attempt.
var ErrRequeue = errors.New("requeue without processing")

// Handler processes deliveries for a worker slot.
type Handler interface {
	// Handle processes one delivery. Returning without acknowledging leaves
	// the message for redelivery unless the error wraps ErrRequeue.
	Handle(ctx context.Context, slot string, d Delivery) error
	// Idle is called once when a slot starts, before its first receive.
	Idle(slot string)
}

// Options configures a Consumer.
type Options struct {
	Queue           string
	ConsumerID      string
	Concurrency     int
	PollTimeout     time.Duration
	MaxRedeliveries int
}

// Status is the read-only health view of the inbound queue.
type Status struct {
	QueueName     string `json:"queue_name"`
	QueueBacklog  int64  `json:"queue_backlog"`
	IntakeStopped bool   `json:"intake_stopped"`
}

// Consumer receives inbound messages with a fixed pool of worker slots.
type Consumer struct {
	rdb    redis.UniversalClient
	opts   Options
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewConsumer creates a consumer. Zero-valued options take defaults.
func NewConsumer(rdb redis.UniversalClient, opts Options, logger *slog.Logger) *Consumer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.MaxRedeliveries < 0 {
		opts.MaxRedeliveries = defaultMaxRedeliv
	}
	if opts.ConsumerID == "" {
		opts.ConsumerID = "default"
	}
	return &Consumer{
		rdb:    rdb,
		opts:   opts,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

func (c *Consumer) processingKey() string { return c.opts.Queue + ":processing:" + c.opts.ConsumerID }
func (c *Consumer) deadKey() string       { return c.opts.Queue + ":dead" }

// DeadLetterQueue returns the name of the dead-letter list.
func (c *Consumer) DeadLetterQueue() string { return c.deadKey() }

// Stop halts intake. Slots finish their current message and exit. It is
// idempotent and does not block.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("stopping queue consumer", "queue", c.opts.Queue)
		close(c.stop)
	})
}

// Stopped reports whether Stop has been called.
func (c *Consumer) Stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Recover moves messages left in this consumer's processing list by a
// previous run back onto the inbound queue, oldest ending up first in line.
func (c *Consumer) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := c.rdb.LMove(ctx, c.processingKey(), c.opts.Queue, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("recover processing list: %w", err)
		}
		n++
	}
	if n > 0 {
		c.logger.Info("recovered unacknowledged messages", "queue", c.opts.Queue, "count", n)
	}
	return n, nil
}

// Run starts the worker slots and blocks until all of them have exited,
// which happens after Stop or when ctx is done.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	c.logger.Info("queue consumer started",
		"queue", c.opts.Queue,
		"consumer_id", c.opts.ConsumerID,
		"concurrency", c.opts.Concurrency,
	)

	var wg sync.WaitGroup
	for i := 1; i <= c.opts.Concurrency; i++ {
		slot := strconv.Itoa(i)
		wg.Go(func() {
			c.work(ctx, slot, h)
		})
	}
	wg.Wait()

	c.logger.Info("queue consumer stopped", "queue", c.opts.Queue)
	return nil
}

func (c *Consumer) work(ctx context.Context, slot string, h Handler) {
	h.Idle(slot)

	for {
		if c.Stopped() || ctx.Err() != nil {
			return
		}

		raw, err := c.rdb.BRPopLPush(ctx, c.opts.Queue, c.processingKey(), c.opts.PollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("receive failed", "queue", c.opts.Queue, "slot", slot, "error", err)
			c.pause(ctx)
			continue
		}

		receivedTotal.Inc()
		c.deliver(ctx, slot, raw, h)
	}
}

// pause waits one poll interval unless stopped first.
func (c *Consumer) pause(ctx context.Context) {
	t := time.NewTimer(c.opts.PollTimeout)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.stop:
	case <-ctx.Done():
	}
}

func (c *Consumer) deliver(ctx context.Context, slot, raw string, h Handler) {
	msg, err := decodeMessage(raw)
	if err != nil {
		c.logger.Error("undecodable message, dead-lettering", "queue", c.opts.Queue, "slot", slot, "error", err)
		c.deadLetter(ctx, raw, raw)
		return
	}

	if c.Stopped() {
		c.requeue(ctx, raw)
		return
	}

	d := &delivery{consumer: c, raw: raw, msg: msg}
	herr := h.Handle(ctx, slot, d)
	if d.acked {
		return
	}

	if errors.Is(herr, ErrRequeue) {
		c.requeue(ctx, raw)
		return
	}
	c.redeliver(ctx, raw, msg)
}

// requeue puts raw back at the consuming end of the inbound queue.
func (c *Consumer) requeue(ctx context.Context, raw string) {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, c.processingKey(), 1, raw)
		p.RPush(ctx, c.opts.Queue, raw)
		return nil
	})
	if err != nil {
		c.logger.Error("requeue failed, message stays in processing list", "queue", c.opts.Queue, "error", err)
	}
}

// redeliver pushes msg to the back of the inbound queue with one more
// delivery counted, or dead-letters it past the limit.
func (c *Consumer) redeliver(ctx context.Context, raw string, msg Message) {
	msg.Deliveries++
	next, err := msg.encode()
	if err != nil {
		c.logger.Error("re-encode for redelivery failed", "correlation_id", msg.CorrelationID, "error", err)
		return
	}

	if msg.Deliveries > c.opts.MaxRedeliveries {
		c.logger.Error("redelivery limit reached, dead-lettering",
			"correlation_id", msg.CorrelationID,
			"type", msg.Type,
			"deliveries", msg.Deliveries,
		)
		c.deadLetter(ctx, raw, next)
		return
	}

	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, c.processingKey(), 1, raw)
		p.LPush(ctx, c.opts.Queue, next)
		return nil
	})
	if err != nil {
		c.logger.Error("redelivery failed, message stays in processing list",
			"correlation_id", msg.CorrelationID,
			"error", err,
		)
		return
	}
	redeliveriesTotal.Inc()
	c.logger.Warn("message left unacknowledged, queued for redelivery",
		"correlation_id", msg.CorrelationID,
		"type", msg.Type,
		"deliveries", msg.Deliveries,
	)
}

func (c *Consumer) deadLetter(ctx context.Context, raw, parked string) {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, c.processingKey(), 1, raw)
		p.LPush(ctx, c.deadKey(), parked)
		return nil
	})
	if err != nil {
		c.logger.Error("dead-letter failed, message stays in processing list", "queue", c.opts.Queue, "error", err)
		return
	}
	deadLettersTotal.Inc()
}

// Enqueue pushes a message onto the inbound queue. Producers and tests use
// it; the consumer itself never does.
func (c *Consumer) Enqueue(ctx context.Context, m Message) error {
	raw, err := m.encode()
	if err != nil {
		return err
	}
	if err := c.rdb.LPush(ctx, c.opts.Queue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Status reports the queue name and its current backlog.
func (c *Consumer) Status(ctx context.Context) (Status, error) {
	n, err := c.rdb.LLen(ctx, c.opts.Queue).Result()
	if err != nil {
		return Status{}, fmt.Errorf("queue backlog: %w", err)
	}
	return Status{
		QueueName:     c.opts.Queue,
		QueueBacklog:  n,
		IntakeStopped: c.Stopped(),
	}, nil
}
