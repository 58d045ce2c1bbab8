// Package corpustest is a behavioural test suite every corpus.Store
// implementation runs against.
package corpustest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
)

// Factory returns an empty store; the suite closes it.
type Factory func(t *testing.T) corpus.Store

// Weighted builds an initialized histogram whose weights equal the counts.
func Weighted(id int64, tokens ...string) *histogram.Histogram {
	h := histogram.Build(id, tokens)
	weights := make(map[histogram.NGram]float64, h.Len())
	for _, item := range h.Items() {
		weights[item.Key] = float64(item.Count)
	}
	return h.WithWeights(weights)
}

// Seed saves public weighted documents with ids 1..n.
func Seed(t *testing.T, s corpus.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		id := int64(i)
		if err := s.Save(ctx, corpus.Document{ID: id}, Weighted(id, "common", fmt.Sprintf("t%d", i))); err != nil {
			t.Fatalf("Save(%d): %v", id, err)
		}
	}
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s corpus.Store)
	}{
		{"PageScanCompleteness", testPageScanCompleteness},
		{"CorpusMembership", testCorpusMembership},
		{"Stats", testStats},
		{"LookupWeight", testLookupWeight},
		{"SaveGetRoundTrip", testSaveGetRoundTrip},
		{"StaleLifecycle", testStaleLifecycle},
		{"Delete", testDelete},
		{"ScanAcrossDelete", testScanAcrossDelete},
		{"PageAfterGap", testPageAfterGap},
		{"InvalidPage", testInvalidPage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func testPageScanCompleteness(t *testing.T, s corpus.Store) {
	const pageSize = 5
	ctx := context.Background()
	seeded := 0
	for _, tc := range []struct{ pages, remainder int }{
		{1, 1}, {1, 5}, {2, 1}, {3, 4}, {4, 5},
	} {
		n := pageSize*(tc.pages-1) + tc.remainder
		for seeded < n {
			seeded++
			id := int64(seeded)
			if err := s.Save(ctx, corpus.Document{ID: id}, Weighted(id, "x")); err != nil {
				t.Fatalf("Save(%d): %v", id, err)
			}
		}

		var got []int64
		pages := 0
		err := corpus.Scan(ctx, s, pageSize, func(pageIndex int, page corpus.Page) error {
			if pageIndex != pages {
				return fmt.Errorf("page %d delivered out of order", pageIndex)
			}
			pages++
			if len(page.Histograms) > pageSize {
				return fmt.Errorf("page %d holds %d histograms", pageIndex, len(page.Histograms))
			}
			for _, h := range page.Histograms {
				got = append(got, h.DocumentID())
			}
			return nil
		})
		if err != nil {
			t.Fatalf("n=%d: Scan: %v", n, err)
		}
		if pages != tc.pages {
			t.Fatalf("n=%d: scanned %d pages, want %d", n, pages, tc.pages)
		}
		want := make([]int64, n)
		for i := range want {
			want[i] = int64(i + 1)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("n=%d: ids = %v, want %v", n, got, want)
		}
	}
}

func testCorpusMembership(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	Seed(t, s, 2)
	if err := s.Save(ctx, corpus.Document{ID: 3, Private: true}, Weighted(3, "common")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, corpus.Document{ID: 4}, histogram.Build(4, []string{"common"})); err != nil {
		t.Fatal(err)
	}

	page, err := s.FetchPage(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page); !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("page ids = %v, want [1 2]", got)
	}
	if page.HasNext {
		t.Fatal("HasNext on the only page")
	}

	if err := s.SetVisibility(ctx, 3, false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVisibility(ctx, 1, true); err != nil {
		t.Fatal(err)
	}
	page, err = s.FetchPage(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page); !slices.Equal(got, []int64{2, 3}) {
		t.Fatalf("page ids after visibility change = %v, want [2 3]", got)
	}
	if err := s.SetVisibility(ctx, 99, true); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("SetVisibility(missing) = %v, want ErrDocumentNotFound", err)
	}
}

func testStats(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	Seed(t, s, 3)
	if err := s.Save(ctx, corpus.Document{ID: 4, Private: true}, Weighted(4, "common", "t1")); err != nil {
		t.Fatal(err)
	}

	terms := []histogram.NGram{"common", "t1", "absent"}
	stats, err := s.Stats(ctx, terms, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Size != 3 {
		t.Fatalf("Size = %d, want 3", stats.Size)
	}
	if stats.DocumentFrequency["common"] != 3 || stats.DocumentFrequency["t1"] != 1 || stats.DocumentFrequency["absent"] != 0 {
		t.Fatalf("DocumentFrequency = %v", stats.DocumentFrequency)
	}

	stats, err = s.Stats(ctx, terms, 1)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Size != 2 || stats.DocumentFrequency["common"] != 2 || stats.DocumentFrequency["t1"] != 0 {
		t.Fatalf("Stats excluding 1 = %+v", stats)
	}
}

func testLookupWeight(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	if err := s.Save(ctx, corpus.Document{ID: 7}, Weighted(7, "cat", "cat", "dog")); err != nil {
		t.Fatal(err)
	}
	w, ok, err := s.LookupWeight(ctx, "cat", 7)
	if err != nil || !ok || w != 2 {
		t.Fatalf("LookupWeight(cat) = %v, %v, %v; want 2, true, nil", w, ok, err)
	}
	w, ok, err = s.LookupWeight(ctx, "bird", 7)
	if err != nil || ok || w != 0 {
		t.Fatalf("LookupWeight(bird) = %v, %v, %v; want 0, false, nil", w, ok, err)
	}
	if _, _, err := s.LookupWeight(ctx, "cat", 8); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("LookupWeight(missing doc) = %v, want ErrDocumentNotFound", err)
	}
}

func testSaveGetRoundTrip(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	h := Weighted(5, "b", "a", "b")
	if err := s.Save(ctx, corpus.Document{ID: 5, Private: true}, h); err != nil {
		t.Fatal(err)
	}
	doc, got, err := s.Get(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Private || doc.ID != 5 {
		t.Fatalf("doc = %+v", doc)
	}
	if !got.Initialized() || !got.UpToDate() {
		t.Fatal("flags lost")
	}
	if !slices.Equal(got.Tokens(), []string{"b", "a", "b"}) {
		t.Fatalf("tokens = %v", got.Tokens())
	}
	if fmt.Sprint(got.Items()) != fmt.Sprint(h.Items()) {
		t.Fatalf("items = %v, want %v", got.Items(), h.Items())
	}

	// Saving again replaces the item set.
	if err := s.Save(ctx, corpus.Document{ID: 5}, Weighted(5, "c")); err != nil {
		t.Fatal(err)
	}
	_, got, err = s.Get(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if keys := got.Keys(); len(keys) != 1 || keys[0] != "c" {
		t.Fatalf("keys after resave = %v", keys)
	}

	if _, _, err := s.Get(ctx, 6); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("Get(missing) = %v", err)
	}
	if err := s.Save(ctx, corpus.Document{ID: 9}, Weighted(8, "x")); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("Save(mismatched id) = %v, want ErrInvalidInput", err)
	}
}

func testStaleLifecycle(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	Seed(t, s, 4)
	n, err := s.MarkStale(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("MarkStale = %d, want 3", n)
	}
	if n, _ := s.MarkStale(ctx, 2); n != 0 {
		t.Fatalf("second MarkStale = %d, want 0", n)
	}

	docs, hists, err := s.FetchStale(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || len(hists) != 2 || docs[0].ID != 1 || docs[1].ID != 3 {
		t.Fatalf("FetchStale(2) = %v", docs)
	}
	for _, h := range hists {
		if h.UpToDate() || !h.Initialized() {
			t.Fatalf("stale histogram %d has flags initialized=%v upToDate=%v", h.DocumentID(), h.Initialized(), h.UpToDate())
		}
	}

	// Stale histograms remain searchable with their previous weights.
	page, err := s.FetchPage(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Histograms) != 4 {
		t.Fatalf("page size = %d, want 4", len(page.Histograms))
	}

	if err := s.Save(ctx, docs[0], hists[0].WithWeights(hists[0].Weights())); err != nil {
		t.Fatal(err)
	}
	docs, _, err = s.FetchStale(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].ID != 3 || docs[1].ID != 4 {
		t.Fatalf("FetchStale after refresh = %v", docs)
	}
}

func testDelete(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	Seed(t, s, 2)
	if err := s.Delete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, 1); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("second Delete = %v", err)
	}
	page, err := s.FetchPage(ctx, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page); !slices.Equal(got, []int64{2}) {
		t.Fatalf("ids after delete = %v", got)
	}
}

func testScanAcrossDelete(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	Seed(t, s, 10)

	var got []int64
	err := corpus.Scan(ctx, s, 5, func(pageIndex int, page corpus.Page) error {
		got = append(got, ids(page)...)
		if pageIndex == 0 {
			return s.Delete(ctx, 1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if !slices.Equal(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func testPageAfterGap(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	Seed(t, s, 8)
	for _, id := range []int64{3, 4} {
		if err := s.Delete(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		after    int64
		want     []int64
		wantNext bool
	}{
		{0, []int64{1, 2, 5}, true},
		{2, []int64{5, 6, 7}, true},
		{3, []int64{5, 6, 7}, true},
		{5, []int64{6, 7, 8}, false},
		{8, []int64{}, false},
	}
	for _, tt := range tests {
		page, err := s.FetchPage(ctx, tt.after, 3)
		if err != nil {
			t.Fatalf("FetchPage(after %d): %v", tt.after, err)
		}
		if got := ids(page); !slices.Equal(got, tt.want) || page.HasNext != tt.wantNext {
			t.Fatalf("FetchPage(after %d) = %v next=%v, want %v next=%v", tt.after, got, page.HasNext, tt.want, tt.wantNext)
		}
	}
}

func testInvalidPage(t *testing.T, s corpus.Store) {
	ctx := context.Background()
	if _, err := s.FetchPage(ctx, 0, 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("FetchPage(size 0) = %v", err)
	}
	if _, err := s.FetchPage(ctx, -1, 5); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("FetchPage(after -1) = %v", err)
	}
	page, err := s.FetchPage(ctx, 3, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Histograms) != 0 || page.HasNext {
		t.Fatalf("page past the end = %+v", page)
	}
}

func ids(page corpus.Page) []int64 {
	out := make([]int64, len(page.Histograms))
	for i, h := range page.Histograms {
		out[i] = h.DocumentID()
	}
	return out
}
