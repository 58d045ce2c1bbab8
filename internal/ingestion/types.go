// Package ingestion defines the request/response types and Kafka event schemas
// used between the document intake API, the indexer and the search service.
package ingestion

import "time"

// DocumentRequest is the JSON body accepted by the document intake endpoint.
type DocumentRequest struct {
	DocumentID int64  `json:"document_id"`
	Text       string `json:"text"`
	Private    bool   `json:"private"`
}

// AcceptedResponse is returned to the caller once a document is queued or
// indexed.
type AcceptedResponse struct {
	DocumentID int64  `json:"document_id"`
	Status     string `json:"status"`
}

const (
	StatusQueued  = "QUEUED"
	StatusIndexed = "INDEXED"
)

// DocumentEvent is the payload of the document-index topic.
type DocumentEvent struct {
	DocumentID int64     `json:"document_id"`
	Text       string    `json:"text"`
	Private    bool      `json:"private"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Corpus change kinds carried by IndexedEvent.
const (
	ActionIndexed    = "indexed"
	ActionVisibility = "visibility"
	ActionDeleted    = "deleted"
	ActionRefreshed  = "refreshed"
)

// IndexedEvent is the payload of the cache-invalidate topic: the corpus
// changed, so cached rankings may be wrong.
type IndexedEvent struct {
	DocumentID int64     `json:"document_id,omitempty"`
	Action     string    `json:"action"`
	At         time.Time `json:"at"`
}
