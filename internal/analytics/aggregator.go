package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalDocIndexed   int64        `json:"total_docs_indexed"`
	TotalRefreshed    int64        `json:"total_histograms_refreshed"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	AvgPagesScanned   float64      `json:"avg_pages_scanned"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	totalDocIndexed   atomic.Int64
	totalRefreshed    atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	pagesScanned      atomic.Int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent is the Kafka handler feeding the aggregator. Events are routed
// by their type field; unknown types are skipped.
func (a *Aggregator) HandleEvent(ctx context.Context, key []byte, value []byte) error {
	env, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		return err
	}
	switch env.Type {
	case EventSearch, EventCacheHit, EventZeroResult:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.RecordSearch(event)
	case EventIndexDoc, EventRefresh:
		event, err := kafka.DecodeJSON[IndexEvent](value)
		if err != nil {
			return err
		}
		a.RecordIndex(event)
	default:
		return fmt.Errorf("%w: unknown analytics event type %q", kafka.ErrSkip, env.Type)
	}
	return nil
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.totalSearches.Add(1)
	a.pagesScanned.Add(int64(event.Pages))

	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.TotalHits == 0 {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) == maxLatencySamples {
		copy(a.latencies, a.latencies[1:])
		a.latencies = a.latencies[:maxLatencySamples-1]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.TotalHits == 0 {
		a.zeroResultQueries[event.Query]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) RecordIndex(event IndexEvent) {
	switch event.Type {
	case EventRefresh:
		a.totalRefreshed.Add(int64(event.Refreshed))
	default:
		a.totalDocIndexed.Add(1)
	}
}

// Stats is Snapshot with the default number of listed queries.
func (a *Aggregator) Stats() AggregatedStats {
	return a.Snapshot(defaultTopQueries)
}

// Snapshot returns the running totals, listing at most top frequent and
// zero-result queries.
func (a *Aggregator) Snapshot(top int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		TotalDocIndexed: a.totalDocIndexed.Load(),
		TotalRefreshed:  a.totalRefreshed.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if stats.TotalSearches > 0 {
		stats.AvgPagesScanned = float64(a.pagesScanned.Load()) / float64(stats.TotalSearches)
	}
	stats.TopQueries = topN(a.queryCounts, top)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, top)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		switch {
		case a.Query < b.Query:
			return -1
		case a.Query > b.Query:
			return 1
		}
		return 0
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
