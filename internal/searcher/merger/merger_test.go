package merger

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/ranker"
)

func TestMergeAll(t *testing.T) {
	partials := [][]ranker.ScoredDoc{
		{{DocumentID: 3, Similarity: 0.4}, {DocumentID: 1, Similarity: 0.9}},
		nil,
		{{DocumentID: 2, Similarity: 0.4}},
	}
	got := ranker.IDs(Merge(partials, 0))
	if want := []int64{1, 2, 3}; !slices.Equal(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMergeTopKMatchesFullRank(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	var partials [][]ranker.ScoredDoc
	var all []ranker.ScoredDoc
	id := int64(0)
	for w := 0; w < 4; w++ {
		var p []ranker.ScoredDoc
		for i := 0; i < 25; i++ {
			id++
			// Coarse scores force ties.
			d := ranker.ScoredDoc{DocumentID: id, Similarity: float64(r.Intn(5)) / 5}
			p = append(p, d)
			all = append(all, d)
		}
		partials = append(partials, p)
	}
	want := ranker.IDs(ranker.Rank(all, 10))
	got := ranker.IDs(Merge(partials, 10))
	if !slices.Equal(got, want) {
		t.Fatalf("Merge(top 10) = %v, want %v", got, want)
	}
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil, 3); len(got) != 0 {
		t.Fatalf("Merge(nil) = %v", got)
	}
}
