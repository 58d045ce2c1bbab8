// Package memory is an in-process corpus.Store: an arena of histograms keyed
// by document id, guarded by a read-write mutex. Readers receive copies, so a
// scan observes each histogram as it was when its page was fetched.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tfidf"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
)

type entry struct {
	doc  corpus.Document
	hist *histogram.Histogram
}

func (e entry) inCorpus() bool {
	return !e.doc.Private && e.hist.Initialized()
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[int64]entry
}

var _ corpus.Store = (*Store)(nil)

func New() *Store {
	return &Store{entries: make(map[int64]entry)}
}

func (s *Store) FetchPage(ctx context.Context, after int64, pageSize int) (corpus.Page, error) {
	if err := ctx.Err(); err != nil {
		return corpus.Page{}, err
	}
	if after < 0 || pageSize < 1 {
		return corpus.Page{}, fmt.Errorf("%w: page after %d of size %d", apperrors.ErrInvalidInput, after, pageSize)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.corpusIDs()
	start := sort.Search(len(ids), func(i int) bool { return ids[i] > after })
	if start >= len(ids) {
		return corpus.Page{}, nil
	}
	end := min(start+pageSize, len(ids))
	page := corpus.Page{
		Histograms: make([]*histogram.Histogram, 0, end-start),
		HasNext:    end < len(ids),
	}
	for _, id := range ids[start:end] {
		page.Histograms = append(page.Histograms, s.entries[id].hist.Clone())
	}
	return page, nil
}

func (s *Store) LookupWeight(ctx context.Context, term histogram.NGram, documentID int64) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[documentID]
	if !ok {
		return 0, false, apperrors.ErrDocumentNotFound
	}
	item, ok := e.hist.Get(term)
	return item.TfIdf, ok, nil
}

func (s *Store) Stats(ctx context.Context, terms []histogram.NGram, exclude int64) (tfidf.Stats, error) {
	if err := ctx.Err(); err != nil {
		return tfidf.Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := tfidf.Stats{DocumentFrequency: make(map[histogram.NGram]int, len(terms))}
	for id, e := range s.entries {
		if id == exclude || !e.inCorpus() {
			continue
		}
		stats.Size++
		for _, term := range terms {
			if _, ok := e.hist.Get(term); ok {
				stats.DocumentFrequency[term]++
			}
		}
	}
	return stats, nil
}

func (s *Store) Save(ctx context.Context, doc corpus.Document, h *histogram.Histogram) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.ID != h.DocumentID() {
		return fmt.Errorf("%w: histogram of document %d saved under %d", apperrors.ErrInvalidInput, h.DocumentID(), doc.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[doc.ID] = entry{doc: doc, hist: h.Clone()}
	return nil
}

func (s *Store) Get(ctx context.Context, documentID int64) (corpus.Document, *histogram.Histogram, error) {
	if err := ctx.Err(); err != nil {
		return corpus.Document{}, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[documentID]
	if !ok {
		return corpus.Document{}, nil, apperrors.ErrDocumentNotFound
	}
	return e.doc, e.hist.Clone(), nil
}

func (s *Store) MarkStale(ctx context.Context, keep int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.entries {
		if id == keep || !e.hist.UpToDate() {
			continue
		}
		e.hist.MarkStale()
		n++
	}
	return n, nil
}

func (s *Store) FetchStale(ctx context.Context, limit int) ([]corpus.Document, []*histogram.Histogram, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0)
	for id, e := range s.entries {
		if e.hist.Initialized() && !e.hist.UpToDate() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	docs := make([]corpus.Document, 0, len(ids))
	hists := make([]*histogram.Histogram, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, s.entries[id].doc)
		hists = append(hists, s.entries[id].hist.Clone())
	}
	return docs, hists, nil
}

func (s *Store) SetVisibility(ctx context.Context, documentID int64, private bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[documentID]
	if !ok {
		return apperrors.ErrDocumentNotFound
	}
	e.doc.Private = private
	s.entries[documentID] = e
	return nil
}

func (s *Store) Delete(ctx context.Context, documentID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[documentID]; !ok {
		return apperrors.ErrDocumentNotFound
	}
	delete(s.entries, documentID)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

// Len returns the number of stored documents, in or out of the corpus.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// corpusIDs must be called with mu held.
func (s *Store) corpusIDs() []int64 {
	ids := make([]int64, 0, len(s.entries))
	for id, e := range s.entries {
		if e.inCorpus() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
