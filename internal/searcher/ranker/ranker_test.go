package ranker

import (
	"slices"
	"testing"
)

func TestRankOrdersBySimilarityThenID(t *testing.T) {
	docs := []ScoredDoc{
		{DocumentID: 4, Similarity: 0.2},
		{DocumentID: 9, Similarity: 0.8},
		{DocumentID: 2, Similarity: 0.5},
		{DocumentID: 1, Similarity: 0.5},
		{DocumentID: 7, Similarity: 0.8},
	}
	got := IDs(Rank(docs, 0))
	want := []int64{7, 9, 1, 2, 4}
	if !slices.Equal(got, want) {
		t.Fatalf("Rank = %v, want %v", got, want)
	}
}

func TestRankLimit(t *testing.T) {
	docs := []ScoredDoc{
		{DocumentID: 1, Similarity: 0.1},
		{DocumentID: 2, Similarity: 0.9},
		{DocumentID: 3, Similarity: 0.5},
	}
	tests := []struct {
		limit int
		want  []int64
	}{
		{0, []int64{2, 3, 1}},
		{-1, []int64{2, 3, 1}},
		{2, []int64{2, 3}},
		{10, []int64{2, 3, 1}},
	}
	for _, tt := range tests {
		got := IDs(Rank(slices.Clone(docs), tt.limit))
		if !slices.Equal(got, tt.want) {
			t.Errorf("Rank(limit=%d) = %v, want %v", tt.limit, got, tt.want)
		}
	}
}

func TestRankEmpty(t *testing.T) {
	if got := Rank(nil, 5); len(got) != 0 {
		t.Fatalf("Rank(nil) = %v", got)
	}
}
