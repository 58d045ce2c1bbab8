// Package cache memoizes search results in Redis. Concurrent misses for the
// same query collapse into one executor run.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/redis"
)

const keyPrefix = "search:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var _ Backend = (*pkgredis.Client)(nil)

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	isMiss  func(error) bool
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New builds a cache on backend. isMiss tells a missing key apart from a
// backend failure; nil means pkgredis.IsNilError.
func New(backend Backend, ttl time.Duration, isMiss func(error) bool, m *metrics.Metrics) *QueryCache {
	if isMiss == nil {
		isMiss = pkgredis.IsNilError
	}
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		isMiss:  isMiss,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, query string, limit int) (*executor.SearchResult, bool) {
	key := buildKey(query, limit)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !c.isMiss(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, query string, limit int, result *executor.SearchResult) {
	key := buildKey(query, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs computeFn once for all
// concurrent callers of the same key. cached reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	limit int,
	computeFn func(context.Context) (*executor.SearchResult, error),
) (result *executor.SearchResult, cached bool, err error) {
	if result, ok := c.Get(ctx, query, limit); ok {
		return result, true, nil
	}
	key := buildKey(query, limit)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := computeFn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result. Called whenever the corpus changes.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(query string, limit int) string {
	raw := fmt.Sprintf("%s|limit=%d", normalizeQuery(query), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery folds case and diacritics and sorts the words. Repeated
// words are kept: they change the query's term frequencies.
func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(tokenizer.Fold(query)))
	slices.Sort(words)
	return strings.Join(words, " ")
}
