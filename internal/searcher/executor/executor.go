// Package executor runs a query against the corpus: it weights the query
// histogram, scans the corpus page by page, scores every candidate of a page
// in a bounded worker pool and ranks the positive matches.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tfidf"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/tracing"
)

// DefaultPageSize is the number of histograms fetched per corpus page.
const DefaultPageSize = 5

type SearchResult struct {
	Query       string             `json:"query"`
	Terms       []histogram.NGram  `json:"terms"`
	DocumentIDs []int64            `json:"document_ids"`
	Results     []ranker.ScoredDoc `json:"results"`
	// Total counts every positive match, before any limit.
	Total      int `json:"total"`
	Pages      int `json:"pages"`
	Candidates int `json:"candidates"`
}

// Scorer compares the query with one candidate.
type Scorer func(query, candidate similarity.Vector) float64

type Config struct {
	PageSize int
	Workers  int
	IDFMode  tfidf.Mode
}

type Option func(*Executor)

// WithMetrics records scan statistics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithScorer replaces similarity.Compare.
func WithScorer(s Scorer) Option {
	return func(e *Executor) { e.score = s }
}

type Executor struct {
	reader    corpus.Reader
	tokenizer tokenizer.Tokenizer
	cfg       Config
	score     Scorer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(reader corpus.Reader, tok tokenizer.Tokenizer, cfg Config, opts ...Option) *Executor {
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.IDFMode == "" {
		cfg.IDFMode = tfidf.ModeGraded
	}
	e := &Executor{
		reader:    reader,
		tokenizer: tok,
		cfg:       cfg,
		score:     similarity.Compare,
		logger:    slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns the ids of every public, initialized document whose
// similarity to text is positive, best match first.
func (e *Executor) Search(ctx context.Context, text string) ([]int64, error) {
	result, err := e.Execute(ctx, text, 0)
	if err != nil {
		return nil, err
	}
	return result.DocumentIDs, nil
}

// Execute is Search with the scores and scan statistics. A positive limit
// caps Results and DocumentIDs; Total still counts every match.
func (e *Executor) Execute(ctx context.Context, text string, limit int) (*SearchResult, error) {
	start := time.Now()
	result := &SearchResult{
		Query:       text,
		DocumentIDs: []int64{},
		Results:     []ranker.ScoredDoc{},
	}

	_, buildSpan := tracing.StartChildSpan(ctx, "build_query")
	query, err := e.buildQuery(ctx, text)
	buildSpan.End()
	if err != nil {
		return nil, err
	}
	if query == nil {
		return result, nil
	}
	result.Terms = query.Keys()

	_, scanSpan := tracing.StartChildSpan(ctx, "scan")
	var partials [][]ranker.ScoredDoc
	err = corpus.Scan(ctx, e.reader, e.cfg.PageSize, func(pageIndex int, page corpus.Page) error {
		scored, err := e.scorePage(ctx, query, page.Histograms)
		if err != nil {
			return fmt.Errorf("scoring page %d: %w", pageIndex, err)
		}
		partials = append(partials, scored...)
		result.Pages++
		result.Candidates += len(page.Histograms)
		return nil
	})
	scanSpan.SetAttr("pages", result.Pages)
	scanSpan.SetAttr("candidates", result.Candidates)
	scanSpan.End()
	if err != nil {
		return nil, fmt.Errorf("scanning corpus: %w", err)
	}

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	for _, p := range partials {
		result.Total += len(p)
	}
	result.Results = merger.Merge(partials, limit)
	result.DocumentIDs = ranker.IDs(result.Results)
	rankSpan.SetAttr("results", result.Total)
	rankSpan.End()

	if e.metrics != nil {
		e.metrics.SearchPagesScanned.Observe(float64(result.Pages))
		e.metrics.CandidatesScoredTotal.Add(float64(result.Candidates))
		e.metrics.SearchResultsCount.Observe(float64(result.Total))
	}
	logger.FromContext(ctx).Info("query executed",
		"component", "query-executor",
		"terms", len(result.Terms),
		"pages", result.Pages,
		"candidates", result.Candidates,
		"results", result.Total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// buildQuery returns the weighted query histogram, or nil when nothing can
// match: no terms survive tokenization or the corpus is empty.
func (e *Executor) buildQuery(ctx context.Context, text string) (*histogram.Histogram, error) {
	tokens, err := e.tokenizer.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("tokenizing query: %w", err)
	}
	query := histogram.Build(0, tokens)
	if query.Len() == 0 {
		return nil, nil
	}
	stats, err := e.reader.Stats(ctx, query.Keys(), 0)
	if err != nil {
		return nil, fmt.Errorf("collecting corpus stats: %w", err)
	}
	if stats.Size == 0 {
		e.logger.Debug("empty corpus, nothing to rank")
		return nil, nil
	}
	weighted, err := tfidf.NewComputer(stats, e.cfg.IDFMode).Compute(query)
	if err != nil {
		return nil, fmt.Errorf("weighting query: %w", err)
	}
	return weighted, nil
}

// scorePage stripes candidates over at most cfg.Workers goroutines. Each
// worker appends to its own partial list; the first failure cancels the
// rest and is returned.
func (e *Executor) scorePage(ctx context.Context, query *histogram.Histogram, candidates []*histogram.Histogram) ([][]ranker.ScoredDoc, error) {
	workers := min(e.cfg.Workers, len(candidates))
	if workers == 0 {
		return nil, nil
	}
	partials := make([][]ranker.ScoredDoc, workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; i < len(candidates); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				candidate := candidates[i]
				if !candidate.Initialized() {
					return fmt.Errorf("%w: document %d", apperrors.ErrStaleHistogram, candidate.DocumentID())
				}
				s := e.score(query, candidate)
				if math.IsNaN(s) || math.IsInf(s, 0) {
					return fmt.Errorf("%w: document %d scored %v", apperrors.ErrNonFiniteScore, candidate.DocumentID(), s)
				}
				if s > 0 {
					partials[w] = append(partials[w], ranker.ScoredDoc{DocumentID: candidate.DocumentID(), Similarity: s})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return partials, nil
}
