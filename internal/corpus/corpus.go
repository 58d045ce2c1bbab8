// Package corpus defines the storage contract for indexed histograms. The
// corpus is the set of histograms that are initialized and whose document is
// public; it is both the IDF population and the search candidate set.
//
// Histograms are addressed by document id, one histogram per document. The
// search path only reads; indexing writes through the same Store.
package corpus

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/tfidf"
)

// Page is one batch of corpus histograms in ascending document id order.
type Page struct {
	Histograms []*histogram.Histogram
	HasNext    bool
}

// Document is the visibility record a histogram belongs to.
type Document struct {
	ID      int64 `json:"id"`
	Private bool  `json:"private"`
}

// Reader is the read-only view the searcher depends on.
type Reader interface {
	// FetchPage returns up to pageSize corpus histograms, fully weighted,
	// whose document id is greater than after. Pass 0 for the first page
	// and the last id of the previous page after that.
	FetchPage(ctx context.Context, after int64, pageSize int) (Page, error)
	// LookupWeight returns the TF-IDF weight of term in the histogram of
	// documentID; ok is false when the histogram lacks the term.
	LookupWeight(ctx context.Context, term histogram.NGram, documentID int64) (weight float64, ok bool, err error)
	// Stats returns the corpus size and the document frequency of each of
	// terms, leaving out the histogram of exclude (0 excludes nothing).
	Stats(ctx context.Context, terms []histogram.NGram, exclude int64) (tfidf.Stats, error)
}

// Store adds the indexing side.
type Store interface {
	Reader
	// Save upserts the document and replaces its histogram.
	Save(ctx context.Context, doc Document, h *histogram.Histogram) error
	// Get returns the stored histogram of documentID or ErrDocumentNotFound.
	Get(ctx context.Context, documentID int64) (Document, *histogram.Histogram, error)
	// MarkStale clears the up-to-date flag on every histogram except the one
	// of keep and returns how many changed.
	MarkStale(ctx context.Context, keep int64) (int64, error)
	// FetchStale returns up to limit initialized histograms whose weights
	// predate the current vocabulary, with their documents.
	FetchStale(ctx context.Context, limit int) ([]Document, []*histogram.Histogram, error)
	// SetVisibility flips the private flag of a document.
	SetVisibility(ctx context.Context, documentID int64, private bool) error
	// Delete removes a document and its histogram.
	Delete(ctx context.Context, documentID int64) error
	Ping(ctx context.Context) error
	Close() error
}

// Scan calls fn for every page of the corpus in id order, stopping after
// the page that reports no successor. Each page resumes after the last id
// of the previous one, so documents removed behind the cursor never shift
// later pages. It stops early when fn or the store fails or ctx is done.
func Scan(ctx context.Context, r Reader, pageSize int, fn func(pageIndex int, page Page) error) error {
	var after int64
	for pageIndex := 0; ; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.FetchPage(ctx, after, pageSize)
		if err != nil {
			return err
		}
		if err := fn(pageIndex, page); err != nil {
			return err
		}
		if !page.HasNext || len(page.Histograms) == 0 {
			return nil
		}
		after = page.Histograms[len(page.Histograms)-1].DocumentID()
	}
}
