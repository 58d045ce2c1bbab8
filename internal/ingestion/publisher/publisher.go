// Package publisher hands accepted documents to the indexer, either through
// the document-index Kafka topic or by indexing in-process, and announces
// corpus changes on the cache-invalidate topic.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
)

// Submitter accepts a validated document for indexing.
type Submitter interface {
	Submit(ctx context.Context, req *ingestion.DocumentRequest) (*ingestion.AcceptedResponse, error)
}

// Publisher queues documents on the document-index topic.
type Publisher struct {
	producer kafka.Publisher
	logger   *slog.Logger
}

var _ Submitter = (*Publisher)(nil)

func New(producer kafka.Publisher) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Submit publishes a DocumentEvent keyed by document id, so every version of
// a document lands on the same partition in order.
func (p *Publisher) Submit(ctx context.Context, req *ingestion.DocumentRequest) (*ingestion.AcceptedResponse, error) {
	event := kafka.Event{
		Key: strconv.FormatInt(req.DocumentID, 10),
		Value: ingestion.DocumentEvent{
			DocumentID: req.DocumentID,
			Text:       req.Text,
			Private:    req.Private,
			IngestedAt: time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing document %d: %w", req.DocumentID, err)
	}
	p.logger.Debug("document queued", "doc_id", req.DocumentID)
	return &ingestion.AcceptedResponse{DocumentID: req.DocumentID, Status: ingestion.StatusQueued}, nil
}

// Indexer is the part of indexer.Engine Direct needs.
type Indexer interface {
	IndexDocument(ctx context.Context, doc indexer.Document) (indexer.Result, error)
}

// Direct indexes synchronously, for deployments without Kafka.
type Direct struct {
	indexer     Indexer
	invalidator *Invalidator
}

var _ Submitter = (*Direct)(nil)

func NewDirect(idx Indexer, invalidator *Invalidator) *Direct {
	return &Direct{indexer: idx, invalidator: invalidator}
}

func (d *Direct) Submit(ctx context.Context, req *ingestion.DocumentRequest) (*ingestion.AcceptedResponse, error) {
	res, err := d.indexer.IndexDocument(ctx, indexer.Document{
		ID:      req.DocumentID,
		Text:    req.Text,
		Private: req.Private,
	})
	if err != nil {
		return nil, err
	}
	d.invalidator.Announce(ctx, res.DocumentID, ingestion.ActionIndexed)
	return &ingestion.AcceptedResponse{DocumentID: res.DocumentID, Status: ingestion.StatusIndexed}, nil
}

// Invalidator publishes IndexedEvents. A nil Invalidator, or one without a
// producer, does nothing.
type Invalidator struct {
	producer kafka.Publisher
	logger   *slog.Logger
}

func NewInvalidator(producer kafka.Publisher) *Invalidator {
	return &Invalidator{
		producer: producer,
		logger:   slog.Default().With("component", "invalidator"),
	}
}

// Announce is best effort: a lost announcement only delays cache expiry
// until the TTL.
func (i *Invalidator) Announce(ctx context.Context, documentID int64, action string) {
	if i == nil || i.producer == nil {
		return
	}
	event := kafka.Event{
		Key: strconv.FormatInt(documentID, 10),
		Value: ingestion.IndexedEvent{
			DocumentID: documentID,
			Action:     action,
			At:         time.Now().UTC(),
		},
	}
	if err := i.producer.Publish(ctx, event); err != nil {
		i.logger.Warn("failed to announce corpus change",
			"doc_id", documentID,
			"action", action,
			"error", err,
		)
	}
}
