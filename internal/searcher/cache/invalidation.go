package cache

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
)

// HandleInvalidation is a kafka.MessageHandler for the cache-invalidate
// topic. Any corpus change can reorder any ranking, so every event flushes
// the whole cache.
func (c *QueryCache) HandleInvalidation(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[ingestion.IndexedEvent](value)
	if err != nil {
		return err
	}
	c.logger.Debug("corpus changed", "doc_id", event.DocumentID, "action", event.Action)
	return c.Invalidate(ctx)
}
