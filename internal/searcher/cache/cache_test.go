package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
)

var errMissing = errors.New("missing")

type fakeBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string]string)}
}

func (f *fakeBackend) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", errMissing
	}
	return v, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return nil
}

func (f *fakeBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func isMissing(err error) bool { return errors.Is(err, errMissing) }

func sampleResult(query string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:       query,
		DocumentIDs: []int64{3, 1},
		Results:     []ranker.ScoredDoc{{DocumentID: 3, Similarity: 0.9}, {DocumentID: 1, Similarity: 0.4}},
		Total:       2,
	}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, isMissing, nil)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls++
		return sampleResult("cat dog"), nil
	}

	_, cached, err := c.GetOrCompute(ctx, "cat dog", 10, compute)
	if err != nil || cached {
		t.Fatalf("first call: cached=%v err=%v", cached, err)
	}
	got, cached, err := c.GetOrCompute(ctx, "Dog  CAT", 10, compute)
	if err != nil || !cached {
		t.Fatalf("second call: cached=%v err=%v", cached, err)
	}
	if calls != 1 {
		t.Fatalf("compute ran %d times, want 1", calls)
	}
	if len(got.DocumentIDs) != 2 || got.DocumentIDs[0] != 3 {
		t.Fatalf("cached result = %+v", got)
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Fatalf("hits=%d misses=%d", hits, misses)
	}
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, isMissing, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return sampleResult("q"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(context.Background(), "q", 0, compute); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Fatalf("compute ran %d times, want 1", n)
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, isMissing, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "q", 0, func(context.Context) (*executor.SearchResult, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get(context.Background(), "q", 0); ok {
		t.Fatal("error result was cached")
	}
}

func TestInvalidate(t *testing.T) {
	backend := newFakeBackend()
	backend.data["unrelated"] = "x"
	c := New(backend, time.Minute, isMissing, nil)
	ctx := context.Background()
	c.Set(ctx, "a", 0, sampleResult("a"))
	c.Set(ctx, "b", 5, sampleResult("b"))
	if err := c.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, "a", 0); ok {
		t.Fatal("entry survived invalidation")
	}
	if _, ok := backend.data["unrelated"]; !ok {
		t.Fatal("invalidation removed a foreign key")
	}
}

func TestHandleInvalidation(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, time.Minute, isMissing, nil)
	ctx := context.Background()
	c.Set(ctx, "a", 0, sampleResult("a"))

	if err := c.HandleInvalidation(ctx, nil, []byte("garbage")); !errors.Is(err, kafka.ErrSkip) {
		t.Fatalf("malformed event: %v", err)
	}
	if _, ok := c.Get(ctx, "a", 0); !ok {
		t.Fatal("malformed event flushed the cache")
	}
	if err := c.HandleInvalidation(ctx, []byte("3"), []byte(`{"document_id":3,"action":"indexed"}`)); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, "a", 0); ok {
		t.Fatal("entry survived invalidation event")
	}
}

func TestBuildKey(t *testing.T) {
	tests := []struct {
		a, b  string
		la    int
		lb    int
		equal bool
	}{
		{"cat dog", "dog cat", 0, 0, true},
		{"Café", "cafe", 0, 0, true},
		{"cat", "cat cat", 0, 0, false},
		{"cat", "cat", 5, 10, false},
		{"cat", "dog", 0, 0, false},
	}
	for _, tt := range tests {
		got := buildKey(tt.a, tt.la) == buildKey(tt.b, tt.lb)
		if got != tt.equal {
			t.Errorf("buildKey(%q,%d) == buildKey(%q,%d) is %v, want %v", tt.a, tt.la, tt.b, tt.lb, got, tt.equal)
		}
	}
	if !strings.HasPrefix(buildKey("x", 0), keyPrefix) {
		t.Fatal("key lacks prefix")
	}
}
