// Package ranker orders scored documents for output.
package ranker

import (
	"slices"
)

// ScoredDoc pairs a document with its similarity to the query.
type ScoredDoc struct {
	DocumentID int64   `json:"document_id"`
	Similarity float64 `json:"similarity"`
}

// Compare orders by similarity descending, then document id ascending.
func Compare(a, b ScoredDoc) int {
	switch {
	case a.Similarity > b.Similarity:
		return -1
	case a.Similarity < b.Similarity:
		return 1
	case a.DocumentID < b.DocumentID:
		return -1
	case a.DocumentID > b.DocumentID:
		return 1
	}
	return 0
}

// Rank sorts docs in place and returns them, truncated to limit when limit
// is positive.
func Rank(docs []ScoredDoc, limit int) []ScoredDoc {
	slices.SortFunc(docs, Compare)
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

// IDs projects ranked docs onto their document ids.
func IDs(docs []ScoredDoc) []int64 {
	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = d.DocumentID
	}
	return ids
}
