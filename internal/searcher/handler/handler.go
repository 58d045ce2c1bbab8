// Package handler exposes the search service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/middleware"
)

type SearchExecutor interface {
	Execute(ctx context.Context, text string, limit int) (*executor.SearchResult, error)
}

// WeightLookup reads single term weights from the corpus.
type WeightLookup interface {
	LookupWeight(ctx context.Context, term histogram.NGram, documentID int64) (float64, bool, error)
}

type SearchResponse struct {
	Query       string  `json:"query"`
	DocumentIDs []int64 `json:"document_ids"`
	Total       int     `json:"total"`
	Cached      bool    `json:"cached"`
}

type TermWeightResponse struct {
	DocumentID int64   `json:"document_id"`
	Term       string  `json:"term"`
	Present    bool    `json:"present"`
	Weight     float64 `json:"weight"`
}

type Handler struct {
	executor   SearchExecutor
	weights    WeightLookup
	tokenizer  tokenizer.Tokenizer
	cache      *cache.QueryCache
	collector  *analytics.Collector
	metrics    *metrics.Metrics
	maxResults int
	logger     *slog.Logger
}

type Config struct {
	Executor  SearchExecutor
	Weights   WeightLookup
	Tokenizer tokenizer.Tokenizer
	// Optional collaborators.
	Cache     *cache.QueryCache
	Collector *analytics.Collector
	Metrics   *metrics.Metrics
	// MaxResults caps the number of ids returned; 0 returns every match.
	MaxResults int
}

func New(cfg Config) *Handler {
	return &Handler{
		executor:   cfg.Executor,
		weights:    cfg.Weights,
		tokenizer:  cfg.Tokenizer,
		cache:      cfg.Cache,
		collector:  cfg.Collector,
		metrics:    cfg.Metrics,
		maxResults: cfg.MaxResults,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/documents/{id}/terms/{term}", h.TermWeight)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.maxResults
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if h.maxResults <= 0 || parsed < h.maxResults {
			limit = parsed
		}
	}

	var (
		result   *executor.SearchResult
		err      error
		cacheHit bool
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, limit, func(ctx context.Context) (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, query, limit)
		})
	} else {
		result, err = h.executor.Execute(ctx, query, limit)
	}
	latency := time.Since(start)

	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.observe("error", cacheHit, latency)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	resultType := "hit"
	if result.Total == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheHit, latency)

	log.Info("search completed",
		"query", query,
		"total", result.Total,
		"returned", len(result.DocumentIDs),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(ctx, query, result, cacheHit, latency)

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:       query,
		DocumentIDs: result.DocumentIDs,
		Total:       result.Total,
		Cached:      cacheHit,
	})
}

// TermWeight reports the TF-IDF weight a document's histogram holds for a
// term. The term is normalized by the tokenizer first, so callers may pass
// surface forms ("Running" finds "run").
func (h *Handler) TermWeight(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be an integer")
		return
	}
	raw := r.PathValue("term")
	tokens, err := h.tokenizer.Tokenize(raw)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), "tokenizing term failed")
		return
	}
	if len(tokens) != 1 {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("term %q must normalize to exactly one token", raw))
		return
	}
	weight, ok, err := h.weights.LookupWeight(r.Context(), histogram.NGram(tokens[0]), id)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("term lookup failed", "document_id", id, "error", err)
		}
		h.writeError(w, status, errorMessage(err))
		return
	}
	h.writeJSON(w, http.StatusOK, TermWeightResponse{
		DocumentID: id,
		Term:       tokens[0],
		Present:    ok,
		Weight:     weight,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) observe(resultType string, cacheHit bool, latency time.Duration) {
	if h.metrics == nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
}

func (h *Handler) track(ctx context.Context, query string, result *executor.SearchResult, cacheHit bool, latency time.Duration) {
	if h.collector == nil {
		return
	}
	eventType := analytics.EventSearch
	switch {
	case cacheHit:
		eventType = analytics.EventCacheHit
	case result.Total == 0:
		eventType = analytics.EventZeroResult
	}
	terms := make([]string, len(result.Terms))
	for i, t := range result.Terms {
		terms[i] = string(t)
	}
	h.collector.Track(analytics.SearchEvent{
		Type:       eventType,
		Query:      query,
		Terms:      terms,
		TotalHits:  result.Total,
		Returned:   len(result.DocumentIDs),
		Pages:      result.Pages,
		Candidates: result.Candidates,
		LatencyMs:  latency.Milliseconds(),
		CacheHit:   cacheHit,
		Timestamp:  time.Now().UTC(),
		RequestID:  middleware.GetRequestID(ctx),
	})
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return "document not found"
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return "corpus store unavailable"
	default:
		return "lookup failed"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
