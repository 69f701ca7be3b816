// Package kafka carries document events over segmentio/kafka-go as JSON.
// Keys pick the partition, so events for one document stay ordered, and the
// consumer never commits past a message it failed to handle.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

// MessageHandler processes one message. A returned error redelivers the
// same message after a backoff.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// LagFunc receives the number of messages behind the partition head after
// each commit.
type LagFunc func(partition int, lag int64)

const (
	minRedeliveryDelay = 100 * time.Millisecond
	maxRedeliveryDelay = 5 * time.Second
)

type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	onLag   LagFunc
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on cfg.DocumentTopic. A group without
// committed offsets starts from the oldest message, so an empty index
// replays the whole topic.
func NewConsumer(cfg config.KafkaConfig, handler MessageHandler, onLag LagFunc) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.DocumentTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		}),
		handler: handler,
		onLag:   onLag,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", cfg.DocumentTopic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			continue
		}
		if !c.deliver(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		if c.onLag != nil && msg.HighWaterMark > 0 {
			c.onLag(msg.Partition, max(msg.HighWaterMark-msg.Offset-1, 0))
		}
	}
}

// deliver hands msg to the handler until it succeeds. It returns false when
// ctx ends first.
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) bool {
	delay := minRedeliveryDelay
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}
		c.logger.Error("handler failed, redelivering",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		delay = min(delay*2, maxRedeliveryDelay)
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
