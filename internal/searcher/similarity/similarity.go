// Package similarity scores a pair of TF-IDF histograms on [0, 1].
package similarity

import (
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
)

// Vector is the read side of a weighted histogram needed for scoring.
type Vector interface {
	Keys() []histogram.NGram
	Weight(key histogram.NGram) float64
}

// Breakdown exposes the accumulators of one comparison.
type Breakdown struct {
	Vocabulary int     `json:"vocabulary"`
	Divisor    float64 `json:"divisor"`
	Dividend   float64 `json:"dividend"`
	Shared     int     `json:"shared"`
	Present    int     `json:"present"`
	Similarity float64 `json:"similarity"`
}

// Compare returns the similarity of a and b. It is symmetric; two empty
// vectors, or vectors without a co-occurring positive term, score 0, and
// vectors with identical weights score 1.
func Compare(a, b Vector) float64 {
	return Explain(a, b).Similarity
}

// Explain runs the comparison and returns every accumulator.
//
// Over the union vocabulary of n terms: divisor sums a+b, dividend sums
// |a-b|, shared counts terms positive in both and present counts terms
// positive in either. With dc = (divisor/2) / dividend the similarity is
// 0.5 * (shared/n + present*shared / (present*shared + dc)).
func Explain(a, b Vector) Breakdown {
	vocab := union(a.Keys(), b.Keys())
	out := Breakdown{Vocabulary: len(vocab)}
	if out.Vocabulary == 0 {
		return out
	}

	for _, term := range vocab {
		wa := a.Weight(term)
		wb := b.Weight(term)
		out.Divisor += wa + wb
		out.Dividend += math.Abs(wa - wb)
		if wa > 0 && wb > 0 {
			out.Shared++
		}
		if wa > 0 || wb > 0 {
			out.Present++
		}
	}

	switch {
	case out.Shared == 0:
		out.Similarity = 0
	case out.Dividend == 0:
		out.Similarity = 1
	default:
		n := float64(out.Vocabulary)
		s := float64(out.Shared)
		t := float64(out.Present)
		dc := (out.Divisor * 0.5) / out.Dividend
		out.Similarity = 0.5 * ((s / n) + (t*s)/(t*s+dc))
	}
	return out
}

// union merges two ascending key lists into one ascending list without
// duplicates. Iterating a sorted union keeps the floating point sums
// independent of argument order.
func union(a, b []histogram.NGram) []histogram.NGram {
	if !slices.IsSorted(a) {
		a = slices.Sorted(slices.Values(a))
	}
	if !slices.IsSorted(b) {
		b = slices.Sorted(slices.Values(b))
	}
	out := make([]histogram.NGram, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return slices.Compact(out)
}
