// Package tfidf weighs histograms by term frequency times inverse document
// frequency, computed against corpus statistics supplied by the caller.
package tfidf

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
)

// Mode selects how document frequency is accumulated.
type Mode string

const (
	// ModeGraded counts every corpus histogram containing the term.
	ModeGraded Mode = "graded"
	// ModePresence counts a term at most once over the whole corpus, which
	// makes IDF identical for every term of a given corpus size.
	ModePresence Mode = "presence"
)

// ParseMode accepts the config spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGraded, "":
		return ModeGraded, nil
	case ModePresence:
		return ModePresence, nil
	default:
		return "", fmt.Errorf("%w: unknown idf mode %q", apperrors.ErrInvalidConfig, s)
	}
}

// Stats are the corpus figures IDF needs: the number of corpus histograms
// and, per term, how many of them contain it. Terms missing from
// DocumentFrequency have frequency 0.
type Stats struct {
	Size              int                     `json:"size"`
	DocumentFrequency map[histogram.NGram]int `json:"document_frequency"`
}

// Collect derives Stats from a set of corpus histograms.
func Collect(corpus []*histogram.Histogram) Stats {
	stats := Stats{
		Size:              len(corpus),
		DocumentFrequency: make(map[histogram.NGram]int),
	}
	for _, h := range corpus {
		for _, key := range h.Keys() {
			stats.DocumentFrequency[key]++
		}
	}
	return stats
}

// WithMember returns stats for the corpus extended by h. Indexing uses it so
// that a document is part of its own IDF population.
func (s Stats) WithMember(h *histogram.Histogram) Stats {
	out := Stats{
		Size:              s.Size + 1,
		DocumentFrequency: make(map[histogram.NGram]int, len(s.DocumentFrequency)+h.Len()),
	}
	for key, df := range s.DocumentFrequency {
		out.DocumentFrequency[key] = df
	}
	for _, key := range h.Keys() {
		out.DocumentFrequency[key]++
	}
	return out
}

// TermFrequency is count divided by the number of distinct terms of the
// owning histogram, in floating point.
func TermFrequency(count, distinctTerms int) float64 {
	if distinctTerms <= 0 {
		return 0
	}
	return float64(count) / float64(distinctTerms)
}

// InverseDocumentFrequency is 1 + ln(size / max(df, 1)). An empty corpus has
// no finite IDF and is reported as ErrEmptyCorpus.
func InverseDocumentFrequency(size, documentFrequency int) (float64, error) {
	if size <= 0 {
		return 0, apperrors.ErrEmptyCorpus
	}
	if documentFrequency < 1 {
		documentFrequency = 1
	}
	return 1 + math.Log(float64(size)/float64(documentFrequency)), nil
}

// Computer weighs histograms against a fixed set of corpus statistics.
type Computer struct {
	stats Stats
	mode  Mode
}

// NewComputer binds stats and mode. The stats are not copied; callers must
// not mutate them while the Computer is in use.
func NewComputer(stats Stats, mode Mode) *Computer {
	if mode == "" {
		mode = ModeGraded
	}
	return &Computer{stats: stats, mode: mode}
}

// Stats returns the statistics the computer weighs against.
func (c *Computer) Stats() Stats { return c.stats }

// Mode returns the document frequency mode.
func (c *Computer) Mode() Mode { return c.mode }

// IDF returns the inverse document frequency of key.
func (c *Computer) IDF(key histogram.NGram) (float64, error) {
	df := c.stats.DocumentFrequency[key]
	if c.mode == ModePresence && df > 1 {
		df = 1
	}
	return InverseDocumentFrequency(c.stats.Size, df)
}

// Compute returns an initialized copy of h with tfidf = tf * idf on every
// item. h itself is left untouched.
func (c *Computer) Compute(h *histogram.Histogram) (*histogram.Histogram, error) {
	distinct := h.Len()
	weights := make(map[histogram.NGram]float64, distinct)
	for _, item := range h.Items() {
		idf, err := c.IDF(item.Key)
		if err != nil {
			return nil, fmt.Errorf("weighing term %q of document %d: %w", item.Key, h.DocumentID(), err)
		}
		weights[item.Key] = TermFrequency(item.Count, distinct) * idf
	}
	return h.WithWeights(weights), nil
}
