// Package consumer reads document events from Kafka, indexes them through
// the indexer engine and announces every corpus change on the
// cache-invalidate topic.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion/publisher"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
)

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that indexes every
// DocumentEvent. Undecodable or invalid documents are skipped; store
// failures are returned so the message is redelivered.
func HandleMessage(engine publisher.Indexer, invalidator *publisher.Invalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return err
		}
		logger.Debug("processing document event", "doc_id", event.DocumentID)

		res, err := engine.IndexDocument(ctx, indexer.Document{
			ID:      event.DocumentID,
			Text:    event.Text,
			Private: event.Private,
		})
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidInput) {
				return fmt.Errorf("%w: document %d: %v", kafka.ErrSkip, event.DocumentID, err)
			}
			return fmt.Errorf("indexing document %d: %w", event.DocumentID, err)
		}
		invalidator.Announce(ctx, res.DocumentID, ingestion.ActionIndexed)

		logger.Info("document indexed",
			"doc_id", res.DocumentID,
			"distinct_terms", res.DistinctTerms,
			"marked_stale", res.MarkedStale,
		)
		return nil
	}
}
