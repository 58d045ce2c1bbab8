// Command loadtest drives the search service with concurrent queries and
// reports throughput, latency percentiles, cache hits and status codes.
// With --seed it first indexes synthetic documents through the indexer's
// intake API.
//
// Usage:
//
//	go run ./cmd/loadtest --url http://localhost:8080 --seed 500 --indexer-url http://localhost:8081
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	BaseURL     string
	IndexerURL  string
	APIKey      string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Seed        int
	Queries     []string
}

type searchResponse struct {
	Total  int  `json:"total"`
	Cached bool `json:"cached"`
}

var vocabulary = []string{
	"histogram", "frequency", "inverse", "document", "corpus", "ranking",
	"similarity", "vector", "cosine", "token", "stemming", "query",
	"index", "weight", "scan", "page", "worker", "cache", "kafka", "redis",
	"postgres", "sqlite", "search", "term", "score", "merge", "stale",
}

func main() {
	cfg := Config{}
	pflag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	pflag.StringVar(&cfg.IndexerURL, "indexer-url", "http://localhost:8081", "base URL of the indexer intake API")
	pflag.StringVar(&cfg.APIKey, "api-key", "", "key sent with seed requests when the indexer requires one")
	pflag.IntVarP(&cfg.Concurrency, "concurrency", "n", 10, "number of concurrent workers")
	pflag.DurationVarP(&cfg.Duration, "duration", "d", 30*time.Second, "test duration")
	pflag.IntVar(&cfg.Limit, "limit", 10, "limit parameter sent with every search")
	pflag.IntVar(&cfg.Seed, "seed", 0, "index this many synthetic documents before the run")
	pflag.StringSliceVarP(&cfg.Queries, "query", "q", []string{
		"histogram ranking",
		"cosine similarity",
		"inverse document frequency",
		"corpus scan",
		"stale weight",
		"token stemming",
		"cache redis",
		"worker page merge",
	}, "queries to cycle through (repeatable)")
	pflag.Parse()

	fmt.Println("=== Histogram Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if cfg.Seed > 0 {
		if err := seedDocuments(client, cfg.IndexerURL, cfg.APIKey, cfg.Seed); err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d documents\n\n", cfg.Seed)
	}

	stats := runLoadTest(client, cfg)
	if !stats.Report(os.Stdout, cfg.Duration) {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

// seedDocuments posts n documents of 5-40 words drawn from vocabulary with
// a fixed seed, so repeated runs index the same corpus.
func seedDocuments(client *http.Client, baseURL, apiKey string, n int) error {
	rng := rand.New(rand.NewPCG(42, 7))
	for id := 1; id <= n; id++ {
		words := make([]string, 5+rng.IntN(36))
		for i := range words {
			words[i] = vocabulary[rng.IntN(len(vocabulary))]
		}
		body, err := json.Marshal(map[string]any{"document_id": id, "text": strings.Join(words, " ")})
		if err != nil {
			return err
		}
		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/documents", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("document %d: %w", id, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("document %d: status %d", id, resp.StatusCode)
		}
	}
	return nil
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Go(func() {
			queryIdx := w
			for ctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(query), cfg.Limit)

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
				if err != nil {
					stats.RecordRequest(0, 0, nil, err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(duration, 0, nil, err)
					}
					continue
				}
				var decoded *searchResponse
				if resp.StatusCode < 300 {
					var body searchResponse
					if json.NewDecoder(resp.Body).Decode(&body) == nil {
						decoded = &body
					}
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(duration, resp.StatusCode, decoded, nil)
			}
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}
