// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer decodes them via a pluggable MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/metrics"
)

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ErrSkip tells the consumer to commit a message the handler could not use.
// Any other handler error leaves the message uncommitted for redelivery.
var ErrSkip = errors.New("skip message")

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	topic   string
	handler MessageHandler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// ConsumerOption tunes a Consumer.
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	startOffset int64
	groupSuffix string
	metrics     *metrics.Metrics
}

// FromFirstOffset makes a new consumer group replay the topic from the
// beginning instead of the tail.
func FromFirstOffset() ConsumerOption {
	return func(o *consumerOptions) { o.startOffset = kafka.FirstOffset }
}

// WithGroupSuffix appends suffix to the consumer group, giving every
// instance its own group (broadcast instead of load-balanced delivery).
func WithGroupSuffix(suffix string) ConsumerOption {
	return func(o *consumerOptions) { o.groupSuffix = suffix }
}

// WithConsumerMetrics counts consumed messages by status.
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(o *consumerOptions) { o.metrics = m }
}

// NewConsumer creates a Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{startOffset: kafka.LastOffset}
	for _, opt := range opts {
		opt(&o)
	}
	group := cfg.ConsumerGroup
	if o.groupSuffix != "" {
		group += "-" + o.groupSuffix
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     group,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: o.startOffset,
	})

	return &Consumer{
		reader:  r,
		topic:   topic,
		handler: handler,
		metrics: o.metrics,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group),
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		err = c.handler(ctx, msg.Key, msg.Value)
		switch {
		case err == nil:
			c.count("ok")
		case errors.Is(err, ErrSkip):
			c.count("skipped")
			c.logger.Warn("skipping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		default:
			c.count("error")
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) count(status string) {
	if c.metrics != nil {
		c.metrics.EventsConsumedTotal.WithLabelValues(c.topic, status).Inc()
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
// Malformed input is wrapped with ErrSkip: redelivery cannot fix it.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("%w: decoding kafka message: %v", ErrSkip, err)
	}
	return result, nil
}
