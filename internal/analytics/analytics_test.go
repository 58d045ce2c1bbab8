package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *recordingPublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestCollectorPublishesTrackedEvents(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())
	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Type: EventSearch, Query: "q"})
	}
	c.Close()
	if got := pub.len(); got != 5 {
		t.Fatalf("published %d events, want 5", got)
	}
	c.Close()
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, 1)
	c.Track(SearchEvent{})
	c.Track(SearchEvent{})
	if got := len(c.eventCh); got != 1 {
		t.Fatalf("buffered %d events, want 1", got)
	}
}

func encoded(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestAggregatorHandleEvent(t *testing.T) {
	a := NewAggregator()
	ctx := context.Background()
	events := [][]byte{
		encoded(t, SearchEvent{Type: EventSearch, Query: "cat", TotalHits: 3, Pages: 2, LatencyMs: 10}),
		encoded(t, SearchEvent{Type: EventCacheHit, Query: "cat", TotalHits: 3, CacheHit: true, LatencyMs: 1}),
		encoded(t, SearchEvent{Type: EventZeroResult, Query: "zebra", Pages: 2, LatencyMs: 30}),
		encoded(t, IndexEvent{Type: EventIndexDoc, DocumentID: 1, TokenCount: 4}),
		encoded(t, IndexEvent{Type: EventRefresh, Refreshed: 7}),
	}
	for _, e := range events {
		if err := a.HandleEvent(ctx, nil, e); err != nil {
			t.Fatal(err)
		}
	}

	stats := a.Stats()
	if stats.TotalSearches != 3 || stats.CacheHits != 1 || stats.CacheMisses != 2 {
		t.Fatalf("search counters = %+v", stats)
	}
	if stats.ZeroResultCount != 1 || len(stats.ZeroResultQueries) != 1 || stats.ZeroResultQueries[0].Query != "zebra" {
		t.Fatalf("zero results = %+v", stats)
	}
	if stats.TotalDocIndexed != 1 || stats.TotalRefreshed != 7 {
		t.Fatalf("index counters = %+v", stats)
	}
	if stats.TopQueries[0].Query != "cat" || stats.TopQueries[0].Count != 2 {
		t.Fatalf("top queries = %+v", stats.TopQueries)
	}
	if stats.P99LatencyMs != 30 || stats.AvgPagesScanned != 4.0/3.0 {
		t.Fatalf("latency/pages = %+v", stats)
	}
}

func TestAggregatorSkipsUnknownAndMalformed(t *testing.T) {
	a := NewAggregator()
	for _, raw := range []string{`{"type":"mystery"}`, `not json`} {
		if err := a.HandleEvent(context.Background(), nil, []byte(raw)); !errors.Is(err, kafka.ErrSkip) {
			t.Fatalf("HandleEvent(%q) = %v, want ErrSkip", raw, err)
		}
	}
	if a.Stats().TotalSearches != 0 {
		t.Fatal("skipped events were counted")
	}
}

func TestPercentileAndTopN(t *testing.T) {
	if got := percentile([]int64{1, 2, 3, 4}, 50); got != 3 {
		t.Fatalf("p50 = %d", got)
	}
	if got := percentile(nil, 99); got != 0 {
		t.Fatalf("p99 of empty = %d", got)
	}
	top := topN(map[string]int64{"b": 2, "a": 2, "c": 5}, 2)
	if len(top) != 2 || top[0].Query != "c" || top[1].Query != "a" {
		t.Fatalf("topN = %+v", top)
	}
}

func TestHandlerStats(t *testing.T) {
	a := NewAggregator()
	a.RecordSearch(SearchEvent{Type: EventSearch, Query: "x", TotalHits: 1, Timestamp: time.Now()})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalSearches != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHandlerStatsTop(t *testing.T) {
	a := NewAggregator()
	for i, q := range []string{"cat", "cat", "cat", "dog", "dog", "owl"} {
		a.RecordSearch(SearchEvent{Type: EventSearch, Query: q, TotalHits: i % 2, Timestamp: time.Now()})
	}
	a.RecordIndex(IndexEvent{Type: EventRefresh, Refreshed: 4})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantTop    []string
	}{
		{"default", "/api/v1/analytics", http.StatusOK, []string{"cat", "dog", "owl"}},
		{"capped", "/api/v1/analytics?top=2", http.StatusOK, []string{"cat", "dog"}},
		{"zero", "/api/v1/analytics?top=0", http.StatusBadRequest, nil},
		{"too large", "/api/v1/analytics?top=101", http.StatusBadRequest, nil},
		{"not a number", "/api/v1/analytics?top=many", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var stats AggregatedStats
			if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, qc := range stats.TopQueries {
				got = append(got, qc.Query)
			}
			if len(got) != len(tt.wantTop) {
				t.Fatalf("top queries = %v, want %v", got, tt.wantTop)
			}
			for i := range got {
				if got[i] != tt.wantTop[i] {
					t.Fatalf("top queries = %v, want %v", got, tt.wantTop)
				}
			}
			if stats.TotalRefreshed != 4 {
				t.Fatalf("total refreshed = %d, want 4", stats.TotalRefreshed)
			}
		})
	}
}
