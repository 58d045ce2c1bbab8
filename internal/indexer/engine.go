// Package indexer turns documents into TF-IDF weighted histograms and keeps
// the stored corpus consistent as its vocabulary changes.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tfidf"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/metrics"
)

// Document is the raw input to indexing.
type Document struct {
	ID      int64
	Text    string
	Private bool
}

// Result summarizes one IndexDocument call.
type Result struct {
	DocumentID    int64
	TokenCount    int
	DistinctTerms int
	MarkedStale   int64
}

type Config struct {
	IDFMode         tfidf.Mode
	RefreshInterval time.Duration
	RefreshBatch    int
	RefreshWorkers  int
}

type Option func(*Engine)

// WithRefreshHook calls fn after every RefreshStale run that changed at
// least one histogram.
func WithRefreshHook(fn func(ctx context.Context, refreshed int)) Option {
	return func(e *Engine) { e.onRefresh = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCollector publishes an analytics.IndexEvent per indexed document and
// per refresh run.
func WithCollector(c *analytics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// Engine writes histograms into a corpus.Store. Writes (indexing and refresh
// batches) are serialized so a refresh can never save weights computed
// before a concurrent insert as up to date.
type Engine struct {
	store     corpus.Store
	tokenizer tokenizer.Tokenizer
	cfg       Config
	metrics   *metrics.Metrics
	collector *analytics.Collector
	onRefresh func(ctx context.Context, refreshed int)
	writeMu   sync.Mutex
	logger    *slog.Logger
}

func NewEngine(store corpus.Store, tok tokenizer.Tokenizer, cfg Config, opts ...Option) *Engine {
	if cfg.IDFMode == "" {
		cfg.IDFMode = tfidf.ModeGraded
	}
	if cfg.RefreshBatch < 1 {
		cfg.RefreshBatch = 50
	}
	if cfg.RefreshWorkers < 1 {
		cfg.RefreshWorkers = 1
	}
	e := &Engine{
		store:     store,
		tokenizer: tok,
		cfg:       cfg,
		logger:    slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IndexDocument builds and weighs the histogram of doc against the current
// corpus plus doc itself, stores it, and marks every other histogram stale.
// Re-indexing an existing id replaces its histogram.
func (e *Engine) IndexDocument(ctx context.Context, doc Document) (Result, error) {
	start := time.Now()
	if doc.ID <= 0 {
		return Result{}, fmt.Errorf("%w: document id must be positive, got %d", apperrors.ErrInvalidInput, doc.ID)
	}
	tokens, err := e.tokenizer.Tokenize(doc.Text)
	if err != nil {
		e.countIndexed("error")
		return Result{}, fmt.Errorf("tokenizing document %d: %w", doc.ID, err)
	}
	h := histogram.Build(doc.ID, tokens)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	stats, err := e.store.Stats(ctx, h.Keys(), doc.ID)
	if err != nil {
		e.countIndexed("error")
		return Result{}, fmt.Errorf("loading corpus stats for document %d: %w", doc.ID, err)
	}
	weighted, err := tfidf.NewComputer(stats.WithMember(h), e.cfg.IDFMode).Compute(h)
	if err != nil {
		e.countIndexed("error")
		return Result{}, err
	}
	if err := e.store.Save(ctx, corpus.Document{ID: doc.ID, Private: doc.Private}, weighted); err != nil {
		e.countIndexed("error")
		return Result{}, fmt.Errorf("saving document %d: %w", doc.ID, err)
	}
	marked, err := e.store.MarkStale(ctx, doc.ID)
	if err != nil {
		e.countIndexed("error")
		return Result{}, fmt.Errorf("marking corpus stale after document %d: %w", doc.ID, err)
	}

	res := Result{
		DocumentID:    doc.ID,
		TokenCount:    len(tokens),
		DistinctTerms: weighted.Len(),
		MarkedStale:   marked,
	}
	e.countIndexed("success")
	if e.metrics != nil {
		e.metrics.HistogramsStaleTotal.Add(float64(marked))
	}
	latency := time.Since(start)
	e.logger.Debug("document indexed",
		"doc_id", doc.ID,
		"tokens", res.TokenCount,
		"distinct_terms", res.DistinctTerms,
		"marked_stale", marked,
		"latency_ms", latency.Milliseconds(),
	)
	if e.collector != nil {
		e.collector.Track(analytics.IndexEvent{
			Type:          analytics.EventIndexDoc,
			DocumentID:    doc.ID,
			TokenCount:    res.TokenCount,
			DistinctTerms: res.DistinctTerms,
			MarkedStale:   marked,
			LatencyMs:     latency.Milliseconds(),
			Timestamp:     time.Now().UTC(),
		})
	}
	return res, nil
}

// RefreshStale recounts and reweighs stale histograms, one batch at a time,
// until none are left. It returns how many were refreshed.
func (e *Engine) RefreshStale(ctx context.Context) (int, error) {
	start := time.Now()
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := e.refreshBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < e.cfg.RefreshBatch {
			break
		}
	}
	if total > 0 {
		latency := time.Since(start)
		e.logger.Info("stale histograms refreshed",
			"count", total,
			"latency_ms", latency.Milliseconds(),
		)
		if e.collector != nil {
			e.collector.Track(analytics.IndexEvent{
				Type:      analytics.EventRefresh,
				Refreshed: total,
				LatencyMs: latency.Milliseconds(),
				Timestamp: time.Now().UTC(),
			})
		}
		if e.onRefresh != nil {
			e.onRefresh(ctx, total)
		}
	}
	return total, nil
}

func (e *Engine) refreshBatch(ctx context.Context) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	docs, hists, err := e.store.FetchStale(ctx, e.cfg.RefreshBatch)
	if err != nil {
		return 0, fmt.Errorf("fetching stale histograms: %w", err)
	}
	if len(hists) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.RefreshWorkers)
	for i := range hists {
		doc, h := docs[i], hists[i]
		g.Go(func() error {
			if err := e.refreshOne(gctx, doc, h); err != nil {
				e.countRefreshed("error")
				return err
			}
			e.countRefreshed("success")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(hists), nil
}

func (e *Engine) refreshOne(ctx context.Context, doc corpus.Document, h *histogram.Histogram) error {
	stats, err := e.store.Stats(ctx, h.Keys(), doc.ID)
	if err != nil {
		return fmt.Errorf("loading corpus stats for document %d: %w", doc.ID, err)
	}
	refreshed, err := histogram.Refresh(h, tfidf.NewComputer(stats.WithMember(h), e.cfg.IDFMode))
	if err != nil {
		return fmt.Errorf("refreshing document %d: %w", doc.ID, err)
	}
	if err := e.store.Save(ctx, doc, refreshed); err != nil {
		return fmt.Errorf("saving refreshed document %d: %w", doc.ID, err)
	}
	return nil
}

// StartRefreshLoop runs RefreshStale every RefreshInterval until ctx is done.
// A non-positive interval disables the loop.
func (e *Engine) StartRefreshLoop(ctx context.Context) {
	if e.cfg.RefreshInterval <= 0 {
		e.logger.Info("refresh loop disabled")
		return
	}
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("refresh loop stopping")
				return
			case <-ticker.C:
				if _, err := e.RefreshStale(ctx); err != nil && ctx.Err() == nil {
					e.logger.Error("periodic refresh failed", "error", err)
				}
			}
		}
	}()
}

// SetVisibility moves a document in or out of the searchable corpus. The
// corpus size changes, so every other histogram becomes stale.
func (e *Engine) SetVisibility(ctx context.Context, documentID int64, private bool) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	doc, _, err := e.store.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document %d: %w", documentID, err)
	}
	if doc.Private == private {
		return nil
	}
	if err := e.store.SetVisibility(ctx, documentID, private); err != nil {
		return fmt.Errorf("updating visibility of document %d: %w", documentID, err)
	}
	return e.markStale(ctx, documentID)
}

// Delete removes a document and marks the rest of the corpus stale.
func (e *Engine) Delete(ctx context.Context, documentID int64) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.store.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document %d: %w", documentID, err)
	}
	return e.markStale(ctx, documentID)
}

func (e *Engine) markStale(ctx context.Context, keep int64) error {
	marked, err := e.store.MarkStale(ctx, keep)
	if err != nil {
		return fmt.Errorf("marking corpus stale: %w", err)
	}
	if e.metrics != nil {
		e.metrics.HistogramsStaleTotal.Add(float64(marked))
	}
	return nil
}

func (e *Engine) countIndexed(status string) {
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.WithLabelValues(status).Inc()
	}
}

func (e *Engine) countRefreshed(status string) {
	if e.metrics != nil {
		e.metrics.HistogramsRefreshTotal.WithLabelValues(status).Inc()
	}
}
