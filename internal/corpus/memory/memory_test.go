package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus/corpustest"
)

func TestStoreContract(t *testing.T) {
	corpustest.Run(t, func(t *testing.T) corpus.Store { return New() })
}

func TestFetchPageReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	corpustest.Seed(t, s, 1)

	page, err := s.FetchPage(ctx, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	page.Histograms[0].MarkStale()

	_, stored, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.UpToDate() {
		t.Fatal("mutating a fetched histogram changed the stored one")
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := New()
	ctx := context.Background()
	corpustest.Seed(t, s, 20)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := int64(100 + w*50 + i)
				if err := s.Save(ctx, corpus.Document{ID: id}, corpustest.Weighted(id, "x")); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := corpus.Scan(ctx, s, 5, func(int, corpus.Page) error { return nil }); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if got := s.Len(); got != 220 {
		t.Fatalf("Len = %d, want 220", got)
	}
}
