// Package histogram holds the per-document term histogram: one item per
// distinct normalized term with its raw count and, once weighted, its TF-IDF
// value.
package histogram

import (
	"slices"
)

// NGram is a normalized vocabulary term.
type NGram string

// Item is one entry of a histogram. TfIdf is only meaningful once the owning
// histogram is initialized.
type Item struct {
	Key   NGram   `json:"key"`
	Count int     `json:"count"`
	TfIdf float64 `json:"tfidf"`
}

// Histogram is the term vector of a single document. A Histogram is either
// fully weighted (Initialized) or carries counts only; weighting produces a
// new value instead of mutating the receiver, so a half-weighted histogram is
// never observable.
type Histogram struct {
	documentID  int64
	items       map[NGram]Item
	tokens      []string
	initialized bool
	upToDate    bool
}

// Build counts the tokens of one document. No weights are computed.
func Build(documentID int64, tokens []string) *Histogram {
	h := &Histogram{
		documentID: documentID,
		items:      make(map[NGram]Item),
		tokens:     slices.Clone(tokens),
	}
	for _, token := range tokens {
		key := NGram(token)
		item := h.items[key]
		item.Key = key
		item.Count++
		h.items[key] = item
	}
	return h
}

// Restore rebuilds a histogram from persisted state. Items with duplicate
// keys keep the last occurrence.
func Restore(documentID int64, tokens []string, items []Item, initialized, upToDate bool) *Histogram {
	h := &Histogram{
		documentID:  documentID,
		items:       make(map[NGram]Item, len(items)),
		tokens:      slices.Clone(tokens),
		initialized: initialized,
		upToDate:    upToDate,
	}
	for _, item := range items {
		h.items[item.Key] = item
	}
	return h
}

func (h *Histogram) DocumentID() int64 { return h.documentID }

func (h *Histogram) Initialized() bool { return h.initialized }

// UpToDate reports whether the weights were computed against the current
// corpus vocabulary.
func (h *Histogram) UpToDate() bool { return h.upToDate }

// Len is the number of distinct terms.
func (h *Histogram) Len() int { return len(h.items) }

func (h *Histogram) Get(key NGram) (Item, bool) {
	item, ok := h.items[key]
	return item, ok
}

// Weight returns the TF-IDF weight of key, or 0 when the term is absent.
func (h *Histogram) Weight(key NGram) float64 {
	return h.items[key].TfIdf
}

// Keys returns the distinct terms in ascending order.
func (h *Histogram) Keys() []NGram {
	keys := make([]NGram, 0, len(h.items))
	for key := range h.items {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Items returns a copy of the items ordered by key.
func (h *Histogram) Items() []Item {
	items := make([]Item, 0, len(h.items))
	for _, key := range h.Keys() {
		items = append(items, h.items[key])
	}
	return items
}

// Tokens returns a copy of the token sequence the histogram was built from.
func (h *Histogram) Tokens() []string {
	return slices.Clone(h.tokens)
}

// Weights returns the full term → TF-IDF vector.
func (h *Histogram) Weights() map[NGram]float64 {
	weights := make(map[NGram]float64, len(h.items))
	for key, item := range h.items {
		weights[key] = item.TfIdf
	}
	return weights
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	c := &Histogram{
		documentID:  h.documentID,
		items:       make(map[NGram]Item, len(h.items)),
		tokens:      slices.Clone(h.tokens),
		initialized: h.initialized,
		upToDate:    h.upToDate,
	}
	for key, item := range h.items {
		c.items[key] = item
	}
	return c
}

// WithWeights returns an initialized, up-to-date copy whose items carry the
// given weights. Every key of the histogram must be present in weights; the
// caller (the TF-IDF computer) guarantees it.
func (h *Histogram) WithWeights(weights map[NGram]float64) *Histogram {
	c := h.Clone()
	for key, item := range c.items {
		item.TfIdf = weights[key]
		c.items[key] = item
	}
	c.initialized = true
	c.upToDate = true
	return c
}

// MarkStale flags the weights as computed against an outdated vocabulary.
func (h *Histogram) MarkStale() {
	h.upToDate = false
}

// Recount returns an unweighted copy whose counts are recomputed from the
// retained token sequence. Terms are neither added nor removed; a term no
// longer present in the tokens keeps a zero count.
func (h *Histogram) Recount() *Histogram {
	counts := make(map[NGram]int, len(h.items))
	for _, token := range h.tokens {
		counts[NGram(token)]++
	}
	c := &Histogram{
		documentID: h.documentID,
		items:      make(map[NGram]Item, len(h.items)),
		tokens:     slices.Clone(h.tokens),
	}
	for key := range h.items {
		c.items[key] = Item{Key: key, Count: counts[key]}
	}
	return c
}

// Weigher computes TF-IDF weights for a histogram against some corpus.
type Weigher interface {
	Compute(h *Histogram) (*Histogram, error)
}

// Refresh recounts h from its tokens and reweighs it with w. The returned
// histogram is initialized and up to date.
func Refresh(h *Histogram, w Weigher) (*Histogram, error) {
	return w.Compute(h.Recount())
}
