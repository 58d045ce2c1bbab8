// Package merger reduces per-worker partial results into one ranked list.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/searcher/ranker"
)

// Merge concatenates every partial list and ranks the union. A positive
// limit keeps only the best limit entries, selected with a bounded heap.
func Merge(partials [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	total := 0
	for _, p := range partials {
		total += len(p)
	}
	if limit <= 0 || limit >= total {
		all := make([]ranker.ScoredDoc, 0, total)
		for _, p := range partials {
			all = append(all, p...)
		}
		return ranker.Rank(all, 0)
	}

	h := &scoredDocHeap{}
	heap.Init(h)
	for _, results := range partials {
		for _, doc := range results {
			heap.Push(h, doc)
			if h.Len() > limit {
				heap.Pop(h)
			}
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap under ranker order: the root is the entry
// that ranks last.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return ranker.Compare(h[i], h[j]) > 0 }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
